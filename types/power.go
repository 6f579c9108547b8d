package types

// ------------------------
// Battery / Charger (ip5306)
// ------------------------

// IP5306Info is the Info.Detail for every ip5306 capability.
type IP5306Info struct {
	Bus  string `json:"bus"`
	Addr uint16 `json:"addr"`
	// Role within the chip: "battery_level" | "charger_connected" | "charge_full".
	Role string `json:"role"`
}

// Retained value: hal/cap/power/battery/<name>/value
//
// Percent is one of 0, 25, 50, 75, 100. Zero is also reported for gauge codes
// the chip does not document.
type BatteryLevelValue struct {
	Percent uint8 `json:"percent"`
}

// Retained value: hal/cap/power/{charger,charge_full}/<name>/value
type BinaryValue struct {
	On bool `json:"on"`
}

// IP5306Describe is the diagnostic dump emitted on event/describe.
type IP5306Describe struct {
	Bus              string `json:"bus"`
	Addr             uint16 `json:"addr"`
	Failed           bool   `json:"failed"`
	BatteryLevel     string `json:"battery_level,omitempty"` // capability name, "" if not configured
	ChargerConnected string `json:"charger_connected,omitempty"`
	ChargeFull       string `json:"charge_full,omitempty"`

	// Last published values; nil until first publish.
	LastPercent   *uint8 `json:"last_percent,omitempty"`
	LastConnected *bool  `json:"last_connected,omitempty"`
	LastFull      *bool  `json:"last_full,omitempty"`
}
