package ip5306dev

import (
	"context"
	"io"
	"log/slog"

	"ip5306-hal/drivers/ip5306"
	"ip5306-hal/errcode"
	"ip5306-hal/services/hal/internal/consts"
	"ip5306-hal/services/hal/internal/core"
	"ip5306-hal/types"
)

// Params defines wiring and naming for one IP5306 instance. Each capability
// name is optional; an empty name leaves that observable unconfigured.
type Params struct {
	Bus    string `yaml:"bus" json:"bus"`       // overrides the device bus_ref when set
	Addr   uint16 `yaml:"addr" json:"addr"`     // optional; default ip5306.AddressDefault
	Domain string `yaml:"domain" json:"domain"` // optional; default "power"

	BatteryLevel     string `yaml:"battery_level" json:"battery_level"`
	ChargerConnected string `yaml:"charger_connected" json:"charger_connected"`
	ChargeFull       string `yaml:"charge_full" json:"charge_full"`
}

// Builder registration.
func init() { core.RegisterBuilder("ip5306", builder{}) }

type builder struct{}

func (builder) Build(ctx context.Context, in core.BuilderInput) (core.Device, error) {
	p, err := core.DecodeParams[Params](in.Params)
	if err != nil {
		return nil, err
	}
	bus := in.Bus
	if p.Bus != "" {
		bus = core.ResourceID(p.Bus)
	}
	if bus == "" {
		return nil, errcode.New(errcode.InvalidParams, "build", "ip5306 needs a bus")
	}
	if p.BatteryLevel == "" && p.ChargerConnected == "" && p.ChargeFull == "" {
		return nil, errcode.New(errcode.InvalidParams, "build", "ip5306 needs at least one capability name")
	}
	if p.Addr == 0 {
		p.Addr = ip5306.AddressDefault
	}
	if p.Domain == "" {
		p.Domain = consts.DomainPower
	}

	i2c, err := in.Res.Reg.ClaimI2C(in.ID, bus)
	if err != nil {
		return nil, err
	}

	log := in.Res.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	dev := &Device{
		id:     in.ID,
		bus:    bus,
		res:    in.Res,
		i2c:    i2c,
		params: p,
		log:    log.With(slog.String("device", in.ID), slog.String("driver", "ip5306")),
	}
	if p.BatteryLevel != "" {
		dev.aLevel = &core.CapAddr{Domain: p.Domain, Kind: types.KindBattery, Name: p.BatteryLevel}
	}
	if p.ChargerConnected != "" {
		dev.aChg = &core.CapAddr{Domain: p.Domain, Kind: types.KindCharger, Name: p.ChargerConnected}
	}
	if p.ChargeFull != "" {
		dev.aFull = &core.CapAddr{Domain: p.Domain, Kind: types.KindChargeFull, Name: p.ChargeFull}
	}
	return dev, nil
}
