package types

// ------------------------
// Capability kinds
// ------------------------

type Kind string

const (
	KindBattery    Kind = "battery"     // battery gauge
	KindCharger    Kind = "charger"     // charger input present
	KindChargeFull Kind = "charge_full" // charge termination reached
)
