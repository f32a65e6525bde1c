package models

// Flag kinds recorded in the result bundle for statistics that could not be
// computed. A flagged value is stored as NaN; the case itself continues.
const (
	FlagEmptyWindow      = "empty_window"
	FlagDegenerateWindow = "degenerate_window"
	FlagUndefinedAI      = "ai_undefined"
	FlagUnresolvedLabel  = "unresolved_label"
)

// Flag marks one statistic as undefined
type Flag struct {
	Kind    string `json:"kind"`
	Scope   string `json:"scope"`
	Region  string `json:"region,omitempty"`
	Message string `json:"message"`
}
