package automation

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
)

// placeholderPattern matches {{key}} and {{key|urlquery}}.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*(?:\|\s*(urlquery)\s*)?\}\}`)

func hasPlaceholder(s string) bool {
	return placeholderPattern.MatchString(s)
}

// interpolate substitutes placeholders with session context values.
// Unknown keys are left verbatim.
func interpolate(s string, lookup func(string) (any, bool)) string {
	if !hasPlaceholder(s) {
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		v, ok := lookup(groups[1])
		if !ok {
			return match
		}
		text := stringify(v)
		if groups[2] == "urlquery" {
			text = url.QueryEscape(text)
		}
		return text
	})
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case bool, int, int64, float64, json.Number:
		return fmt.Sprint(t)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

// resolve returns a copy of a with placeholders in its selector, value and
// waitFor filled from s.
func resolve(a Action, s *Session) Action {
	a.Selector = interpolate(a.Selector, s.Lookup)
	a.WaitFor = interpolate(a.WaitFor, s.Lookup)
	a.Value = Value(interpolate(string(a.Value), s.Lookup))
	return a
}
