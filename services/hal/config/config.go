package config

// HALConfig is supplied on the "config/hal" bus topic.
type HALConfig struct {
	Devices []Device `json:"devices" yaml:"devices"`
	Pollers []Poller `json:"pollers,omitempty" yaml:"pollers,omitempty"`
}

// Device describes one physical or logical device to be managed by HAL.
type Device struct {
	ID     string `json:"id" yaml:"id"`
	Type   string `json:"type" yaml:"type"`
	Params any    `json:"params,omitempty" yaml:"params,omitempty"`
	BusRef BusRef `json:"bus_ref,omitempty" yaml:"bus_ref,omitempty"` // for shared-bus devices (e.g. I²C)
}

// BusRef identifies a named bus instance previously configured in the platform layer.
type BusRef struct {
	Type string `json:"type" yaml:"type"` // e.g. "i2c"
	ID   string `json:"id" yaml:"id"`     // e.g. "i2c1"
}

// Poller schedules a verb against one capability.
type Poller struct {
	Domain     string `json:"domain" yaml:"domain"` // e.g. "power"
	Kind       string `json:"kind" yaml:"kind"`     // e.g. "battery"
	Name       string `json:"name" yaml:"name"`
	Verb       string `json:"verb,omitempty" yaml:"verb,omitempty"` // empty => "read"
	IntervalMs uint32 `json:"interval_ms" yaml:"interval_ms"`
	JitterMs   uint16 `json:"jitter_ms,omitempty" yaml:"jitter_ms,omitempty"`
}

// VerbOrDefault returns the scheduled verb, defaulting to "read".
func (p Poller) VerbOrDefault() string {
	if p.Verb == "" {
		return "read"
	}
	return p.Verb
}

// File is the host-side configuration file: named buses plus the HAL config
// published on startup.
type File struct {
	Buses []Bus     `yaml:"buses"`
	HAL   HALConfig `yaml:"hal"`
}

// Bus maps a bus id used in BusRef to a host device path.
type Bus struct {
	ID   string `yaml:"id"`   // e.g. "i2c1"
	Path string `yaml:"path"` // e.g. "/dev/i2c-1" or "1"
}
