package automation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/convoy/pkg/config"
)

// Coordination is the policy governing how actions are scheduled.
type Coordination string

const (
	// Sequential runs one action at a time in submission order
	Sequential Coordination = "sequential"

	// Parallel dispatches every action concurrently
	Parallel Coordination = "parallel"
)

// ActionKind selects what an action does.
type ActionKind string

const (
	ActionClick      ActionKind = "click"
	ActionType       ActionKind = "type"
	ActionExtract    ActionKind = "extract"
	ActionScript     ActionKind = "script"
	ActionNavigate   ActionKind = "navigate"
	ActionWait       ActionKind = "wait"
	ActionScreenshot ActionKind = "screenshot"
)

// requiresSelector reports whether the kind acts on an element.
func (k ActionKind) requiresSelector() bool {
	switch k {
	case ActionClick, ActionType, ActionExtract:
		return true
	}
	return false
}

// returnsData reports whether results of the kind always carry a data field.
func (k ActionKind) returnsData() bool {
	return k == ActionExtract || k == ActionScript
}

func (k ActionKind) valid() bool {
	switch k {
	case ActionClick, ActionType, ActionExtract, ActionScript, ActionNavigate, ActionWait, ActionScreenshot:
		return true
	}
	return false
}

// Site describes one browsing context to open.
type Site struct {
	ID             string         `json:"id" yaml:"id"`
	URL            string         `json:"url" yaml:"url"`
	InitialContext map[string]any `json:"initialContext,omitempty" yaml:"initialContext"`
}

// Action is one declarative operation against a site's session.
type Action struct {
	Kind     ActionKind `json:"kind" yaml:"kind"`
	Site     string     `json:"site" yaml:"site"`
	Selector string     `json:"selector,omitempty" yaml:"selector"`

	// Value is the text for type, the URL for navigate, milliseconds (or a
	// Go duration) for wait, and the script body for script.
	Value Value `json:"value,omitempty" yaml:"value"`

	// WaitFor is awaited before the action runs.
	WaitFor string `json:"waitFor,omitempty" yaml:"waitFor"`

	// ShareData merges the action's output into session context.
	ShareData bool `json:"shareData,omitempty" yaml:"shareData"`

	// ShareAs names the context key of a non-object output.
	ShareAs string `json:"shareAs,omitempty" yaml:"shareAs"`

	// StopOnFailure overrides the batch policy for this action.
	StopOnFailure *bool `json:"stopOnFailure,omitempty" yaml:"stopOnFailure"`
}

// Value is a scalar action argument. JSON strings, numbers and booleans are
// all accepted and kept in their textual form.
type Value string

// UnmarshalJSON accepts any JSON scalar.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	}
	if len(data) > 0 && (data[0] == '{' || data[0] == '[') {
		return fmt.Errorf("value must be a string, number or boolean")
	}
	*v = Value(data)
	return nil
}

// Duration interprets the value as milliseconds or a Go duration string.
// An empty value yields def.
func (v Value) Duration(def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(string(v))
	if s == "" {
		return def, nil
	}
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("duration cannot be negative: %s", s)
		}
		return time.Duration(ms * float64(time.Millisecond)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: expected milliseconds or a duration like 1.5s", s)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration cannot be negative: %s", s)
	}
	return d, nil
}

// Request is one automation request.
type Request struct {
	Sites        []Site       `json:"sites" yaml:"sites"`
	Actions      []Action     `json:"actions" yaml:"actions"`
	Coordination Coordination `json:"coordination" yaml:"coordination"`

	// TimeoutMs is the overall wall-clock budget; 0 uses the configured default.
	TimeoutMs int64 `json:"timeoutMs,omitempty" yaml:"timeoutMs"`

	// StopOnFailure is the batch failure policy; actions may override it.
	StopOnFailure *bool `json:"stopOnFailure,omitempty" yaml:"stopOnFailure"`
}

// Validate checks the request structure. policy may be nil.
// The returned error is an *Error of kind InvalidRequest.
func (r *Request) Validate(policy *config.URLPolicy) error {
	if r == nil {
		return newError(KindInvalidRequest, "request is required")
	}
	if len(r.Sites) == 0 {
		return newError(KindInvalidRequest, "at least one site is required")
	}

	switch r.Coordination {
	case Sequential, Parallel:
	default:
		return newError(KindInvalidRequest, "invalid coordination: %q (must be 'sequential' or 'parallel')", r.Coordination)
	}

	if r.TimeoutMs < 0 {
		return newError(KindInvalidRequest, "timeoutMs cannot be negative")
	}

	seen := make(map[string]bool, len(r.Sites))
	for i, site := range r.Sites {
		if strings.TrimSpace(site.ID) == "" {
			return newError(KindInvalidRequest, "site %d: id is required", i)
		}
		if seen[site.ID] {
			return newError(KindInvalidRequest, "site %d: duplicate id %q", i, site.ID)
		}
		seen[site.ID] = true

		if site.URL == "" {
			return newError(KindInvalidRequest, "site %q: url is required", site.ID)
		}
		if err := checkURL(policy, site.URL); err != nil {
			return newError(KindInvalidRequest, "site %q: %v", site.ID, err)
		}
	}

	for i, a := range r.Actions {
		if err := a.validate(policy); err != nil {
			return newError(KindInvalidRequest, "action %d: %v", i, err)
		}
	}

	return nil
}

func (a Action) validate(policy *config.URLPolicy) error {
	if !a.Kind.valid() {
		return fmt.Errorf("unknown kind %q", a.Kind)
	}
	if a.Site == "" {
		return fmt.Errorf("site is required")
	}
	if a.Kind.requiresSelector() && strings.TrimSpace(a.Selector) == "" {
		return fmt.Errorf("selector is required for %s", a.Kind)
	}

	switch a.Kind {
	case ActionNavigate:
		if a.Value == "" {
			return fmt.Errorf("value (url) is required for navigate")
		}
		// Placeholders resolve at run time and are checked then.
		if !hasPlaceholder(string(a.Value)) {
			if err := checkURL(policy, string(a.Value)); err != nil {
				return err
			}
		}
	case ActionScript:
		if strings.TrimSpace(string(a.Value)) == "" {
			return fmt.Errorf("value (script body) is required for script")
		}
	case ActionWait:
		if _, err := a.Value.Duration(0); err != nil {
			return err
		}
	}
	return nil
}

func checkURL(policy *config.URLPolicy, rawURL string) error {
	if policy == nil {
		policy = &config.URLPolicy{}
	}
	return policy.Check(rawURL)
}

// LoadRequest reads a request from a JSON (.json) or YAML file.
func LoadRequest(path string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request file: %w", err)
	}
	return ParseRequest(data, strings.EqualFold(filepath.Ext(path), ".json"))
}

// ParseRequest decodes a request from JSON or YAML.
func ParseRequest(data []byte, isJSON bool) (*Request, error) {
	var req Request
	if isJSON {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return nil, fmt.Errorf("failed to parse request: %w", err)
		}
		return &req, nil
	}

	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}
