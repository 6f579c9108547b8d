// services/hal/internal/consts/consts.go
package consts

// Topic tokens
const (
	TokConfig  = "config"
	TokHAL     = "hal"
	TokCap     = "cap"
	TokState   = "state"
	TokInfo    = "info"
	TokStatus  = "status"
	TokValue   = "value"
	TokEvent   = "event"
	TokControl = "control"
)

// Control verbs handled by devices
const (
	CtrlRead     = "read"
	CtrlDescribe = "describe"
)

// Control verbs handled by HAL itself
const (
	CtrlPollStart = "poll_start"
	CtrlPollStop  = "poll_stop"
)

// Event tags
const (
	TagDescribe = "describe"
)

// HAL state levels published on hal/state
const (
	StateIdle    = "idle"
	StateReady   = "ready"
	StateStopped = "stopped"
)

// Default capability domain for power-path kinds.
const DomainPower = "power"
