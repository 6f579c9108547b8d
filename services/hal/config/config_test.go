package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
buses:
  - id: i2c1
    path: /dev/i2c-1
hal:
  devices:
    - id: pmu0
      type: ip5306
      bus_ref: {type: i2c, id: i2c1}
      params:
        addr: 117
        battery_level: main
        charger_connected: main
        charge_full: main
  pollers:
    - {domain: power, kind: battery, name: main, interval_ms: 1000, jitter_ms: 50}
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	f, err := Load(path)
	require.NoError(t, err)

	require.Len(t, f.Buses, 1)
	assert.Equal(t, Bus{ID: "i2c1", Path: "/dev/i2c-1"}, f.Buses[0])

	require.Len(t, f.HAL.Devices, 1)
	d := f.HAL.Devices[0]
	assert.Equal(t, "pmu0", d.ID)
	assert.Equal(t, "ip5306", d.Type)
	assert.Equal(t, BusRef{Type: "i2c", ID: "i2c1"}, d.BusRef)

	params, ok := d.Params.(map[string]any)
	require.True(t, ok, "params should decode as a map, got %T", d.Params)
	assert.Equal(t, 117, params["addr"])
	assert.Equal(t, "main", params["battery_level"])

	require.Len(t, f.HAL.Pollers, 1)
	p := f.HAL.Pollers[0]
	assert.Equal(t, uint32(1000), p.IntervalMs)
	assert.Equal(t, uint16(50), p.JitterMs)
	assert.Equal(t, "read", p.VerbOrDefault())

	assert.NoError(t, Validate(f))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParse_UnknownTopLevelKey(t *testing.T) {
	_, err := Parse([]byte("buses: []\nhall: {}\n"))
	assert.Error(t, err)
}

func TestParse_Empty(t *testing.T) {
	f, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, f.HAL.Devices)
	assert.NoError(t, Validate(f))
}

func TestValidate(t *testing.T) {
	base := func() *File {
		return &File{
			Buses: []Bus{{ID: "i2c1", Path: "/dev/i2c-1"}},
			HAL: HALConfig{
				Devices: []Device{{ID: "pmu0", Type: "ip5306", BusRef: BusRef{Type: "i2c", ID: "i2c1"}}},
				Pollers: []Poller{{Domain: "power", Kind: "battery", Name: "main", IntervalMs: 500}},
			},
		}
	}

	cases := []struct {
		name   string
		mutate func(f *File)
		ok     bool
	}{
		{"valid", func(*File) {}, true},
		{"bus without id", func(f *File) { f.Buses[0].ID = "" }, false},
		{"bus without path", func(f *File) { f.Buses[0].Path = "" }, false},
		{"duplicate bus", func(f *File) { f.Buses = append(f.Buses, f.Buses[0]) }, false},
		{"device without id", func(f *File) { f.HAL.Devices[0].ID = "" }, false},
		{"device without type", func(f *File) { f.HAL.Devices[0].Type = "" }, false},
		{"duplicate device", func(f *File) { f.HAL.Devices = append(f.HAL.Devices, f.HAL.Devices[0]) }, false},
		{"unknown bus", func(f *File) { f.HAL.Devices[0].BusRef.ID = "i2c9" }, false},
		{"non-i2c bus type", func(f *File) { f.HAL.Devices[0].BusRef.Type = "spi" }, false},
		{"zero interval", func(f *File) { f.HAL.Pollers[0].IntervalMs = 0 }, false},
		{"poller without name", func(f *File) { f.HAL.Pollers[0].Name = "" }, false},
		{"describe poller", func(f *File) { f.HAL.Pollers[0].Verb = "describe" }, true},
		{"unknown poller verb", func(f *File) { f.HAL.Pollers[0].Verb = "poll_start" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := base()
			tc.mutate(f)
			err := Validate(f)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateHAL_NilBusesSkipsRefs(t *testing.T) {
	cfg := &HALConfig{Devices: []Device{{ID: "x", Type: "ip5306", BusRef: BusRef{ID: "anything"}}}}
	assert.NoError(t, ValidateHAL(cfg, nil))
}
