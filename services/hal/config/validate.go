package config

import (
	"fmt"
)

// Verbs a poller may schedule.
var pollVerbs = map[string]bool{"read": true, "describe": true}

// Validate checks configuration correctness.
// It performs declarative validation only and does not mutate cfg.
func Validate(f *File) error {
	buses := make(map[string]bool, len(f.Buses))
	for _, b := range f.Buses {
		if b.ID == "" {
			return fmt.Errorf("bus with path %q has no id", b.Path)
		}
		if b.Path == "" {
			return fmt.Errorf("bus %q: path is required", b.ID)
		}
		if buses[b.ID] {
			return fmt.Errorf("bus %q: duplicate id", b.ID)
		}
		buses[b.ID] = true
	}
	return ValidateHAL(&f.HAL, buses)
}

// ValidateHAL checks a HAL config against the set of known bus ids.
// A nil buses map skips bus reference checks.
func ValidateHAL(cfg *HALConfig, buses map[string]bool) error {
	ids := make(map[string]bool, len(cfg.Devices))
	for i, d := range cfg.Devices {
		if d.ID == "" {
			return fmt.Errorf("device #%d: id is required", i)
		}
		if ids[d.ID] {
			return fmt.Errorf("device %q: duplicate id", d.ID)
		}
		ids[d.ID] = true
		if d.Type == "" {
			return fmt.Errorf("device %q: type is required", d.ID)
		}
		if d.BusRef.ID != "" {
			if d.BusRef.Type != "" && d.BusRef.Type != "i2c" {
				return fmt.Errorf("device %q: unsupported bus type %q", d.ID, d.BusRef.Type)
			}
			if buses != nil && !buses[d.BusRef.ID] {
				return fmt.Errorf("device %q: unknown bus %q", d.ID, d.BusRef.ID)
			}
		}
	}

	for i, p := range cfg.Pollers {
		if p.Domain == "" || p.Kind == "" || p.Name == "" {
			return fmt.Errorf("poller #%d: domain, kind and name are required", i)
		}
		if p.IntervalMs == 0 {
			return fmt.Errorf("poller %s/%s/%s: interval_ms must be > 0", p.Domain, p.Kind, p.Name)
		}
		if !pollVerbs[p.VerbOrDefault()] {
			return fmt.Errorf("poller %s/%s/%s: unknown verb %q", p.Domain, p.Kind, p.Name, p.Verb)
		}
	}
	return nil
}
