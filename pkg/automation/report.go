package automation

import (
	"encoding/json"
	"time"
)

// ActionResult is the outcome of one submitted action.
type ActionResult struct {
	// Index is the action's position in the request
	Index int `json:"index"`

	Kind     ActionKind `json:"kind"`
	Site     string     `json:"site"`
	Selector string     `json:"selector,omitempty"`
	Value    string     `json:"value,omitempty"`

	Success bool `json:"success"`

	// Data is the action output: extracted text, script result or capture
	// handle. Successful extract and script results always carry it, as null
	// when nothing was produced.
	Data any `json:"data,omitempty"`

	Error *Error `json:"error,omitempty"`

	DurationMs int64 `json:"durationMs"`
}

func (r *ActionResult) fail(err *Error) {
	r.Success = false
	r.Data = nil
	r.Error = err
}

// MarshalJSON keeps a null data field on successful extract and script
// results.
func (r ActionResult) MarshalJSON() ([]byte, error) {
	type plain ActionResult
	if r.Success && r.Kind.returnsData() && r.Data == nil {
		return json.Marshal(struct {
			plain
			Data any `json:"data"`
		}{plain: plain(r)})
	}
	return json.Marshal(plain(r))
}

// Summary tallies a run.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	// Skipped counts submitted actions with no result, whether halted or cut
	// off by the time budget
	Skipped int `json:"skipped"`

	// Markers flag run-level conditions such as BatchTimeout
	Markers []ErrorKind `json:"markers,omitempty"`
}

// Summarize counts results. submitted is the number of actions in the request.
func Summarize(results []ActionResult, submitted int) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	if submitted > s.Total {
		s.Skipped = submitted - s.Total
	}
	return s
}

// HasMarker reports whether the summary carries kind.
func (s Summary) HasMarker(kind ErrorKind) bool {
	for _, m := range s.Markers {
		if m == kind {
			return true
		}
	}
	return false
}

// Report is the aggregated response to a request.
type Report struct {
	RunID        string         `json:"runId"`
	Coordination Coordination   `json:"coordination"`
	Results      []ActionResult `json:"results"`
	Summary      Summary        `json:"summary"`
	StartedAt    time.Time      `json:"startedAt"`
	FinishedAt   time.Time      `json:"finishedAt"`
}

// Duration returns the wall-clock time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failures returns the failed results in submission order.
func (r *Report) Failures() []ActionResult {
	var out []ActionResult
	for _, res := range r.Results {
		if !res.Success {
			out = append(out, res)
		}
	}
	return out
}

func newReport(runID string, coordination Coordination, results []ActionResult, submitted int, started, finished time.Time, markers ...ErrorKind) *Report {
	if results == nil {
		results = []ActionResult{}
	}
	summary := Summarize(results, submitted)
	summary.Markers = markers
	return &Report{
		RunID:        runID,
		Coordination: coordination,
		Results:      results,
		Summary:      summary,
		StartedAt:    started,
		FinishedAt:   finished,
	}
}
