package types

// ------------------------
// Common HAL state (retained)
// ------------------------

type HALState struct {
	Level  string `json:"level"`  // "idle", "ready", "stopped"
	Status string `json:"status"` // freeform short code
	TSms   int64  `json:"ts_ms"`
}

// Link is the link/state reported for a capability.
type Link string

const (
	LinkUp       Link = "up"
	LinkDown     Link = "down"
	LinkDegraded Link = "degraded"
)

type CapabilityStatus struct {
	Link  Link   `json:"link"`
	TSms  int64  `json:"ts_ms"`
	Error string `json:"error,omitempty"` // machine-readable short code
}

// ------------------------
// Polling (control + declarative)
// ------------------------

// PollStart is the payload of the HAL-handled "poll_start" verb.
type PollStart struct {
	Verb       string `json:"verb" yaml:"verb"`               // e.g. "read"
	IntervalMs uint32 `json:"interval_ms" yaml:"interval_ms"` // >0
	JitterMs   uint16 `json:"jitter_ms" yaml:"jitter_ms"`     // uniform [0..JitterMs]
}

// PollStop is the payload of the HAL-handled "poll_stop" verb.
type PollStop struct {
	Verb string `json:"verb,omitempty" yaml:"verb,omitempty"` // empty => "read"
}

// ------------------------
// Generic replies
// ------------------------

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// ------------------------
// Info envelope (retained)
// ------------------------

type Info struct {
	SchemaVersion int    `json:"schema_version"`
	Driver        string `json:"driver"`
	Detail        any    `json:"detail,omitempty"` // one of *Info types
}
