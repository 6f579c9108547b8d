// Package ip5306 provides constants for register addresses and bitfields used
// by the IP5306 power-bank SoC (boost converter + Li-ion charger).
package ip5306

const (
	// 7-bit I2C address (111_0101b).
	AddressDefault = 0x75

	// --- Register sub-addresses (8-bit registers) ---

	// Control
	regSysCtl0 = 0x00 // R/W: boost, charger, power-on-load enables
	regSysCtl1 = 0x01 // R/W: boost-after-vin, low battery shutdown

	// Readouts
	regRead0 = 0x70 // R: charge enable / charger connected
	regRead1 = 0x71 // R: charge full
	regLevel = 0x78 // R: battery level (high nibble)

	// --- Defaults written at initialisation ---
	setupSysCtl0 = 0x3A // boost, charger, power on load enabled
	setupSysCtl1 = 0x05 // boost after vin, low battery shutdown enabled

	// --- Bitfields ---
	levelMask       = 0xF0
	readChargerIn   = 0x08 // READ0 bit 3
	readChargerFull = 0x08 // READ1 bit 3
)

// Battery level high-nibble codes. The chip reports a four-LED gauge where a
// cleared bit means the LED is lit.
const (
	Level25  = 0xE0
	Level50  = 0xC0
	Level75  = 0x80
	Level100 = 0x00
)
