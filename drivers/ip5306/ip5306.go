// Package ip5306 provides a minimal TinyGo driver for the IP5306 power-bank
// SoC as fitted to M5Stack and similar boards.
//
// Design notes:
// • I2C, 8-bit register sub-address followed by data bytes.
// • Default 7-bit address = 0x75.
// • Configure writes SYS_CTL0 then SYS_CTL1 and stops at the first failure.
// • Battery level is a coarse four-step gauge in the high nibble of 0x78.
// • READ0/READ1 (0x70/0x71) are fetched in one two-byte transaction.
//
// Every bus failure is returned as *IOError so callers can tell which
// register was involved.
package ip5306

import (
	"errors"

	"ip5306-hal/x/conv"

	"tinygo.org/x/drivers"
)

// ---------------- Errors ----------------

// IOError reports a failed register transaction. The transport-level cause
// (NACK, arbitration loss, timeout) is kept in Err but not interpreted.
type IOError struct {
	Op  string // "read" | "write"
	Reg byte
	Err error
}

func (e *IOError) Error() string {
	s := "ip5306: " + e.Op + " reg " + conv.Hex8(e.Reg)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *IOError) Unwrap() error { return e.Err }

// IOFailure marks the error as a bus I/O fault for errcode.MapDriverErr.
func (e *IOError) IOFailure() bool { return true }

// ---------------- Types and configuration ----------------

type Config struct {
	Address uint16 // 0 => AddressDefault
}

type Device struct {
	i2c  drivers.I2C
	addr uint16

	// Fixed buffers to avoid per-call heap allocations.
	w [2]byte
	r [2]byte
}

// New creates a driver bound to an already configured bus. It does not touch
// the device.
func New(i2c drivers.I2C, cfg Config) *Device {
	addr := cfg.Address
	if addr == 0 {
		addr = AddressDefault
	}
	return &Device{i2c: i2c, addr: addr}
}

func (d *Device) Address() uint16 { return d.addr }

// Configure enables boost, charger and power-on-load (SYS_CTL0) and then
// boost-after-VIN and low battery shutdown (SYS_CTL1). If the SYS_CTL0 write
// fails SYS_CTL1 is not attempted. There are no retries.
func (d *Device) Configure() error {
	if err := d.writeRegister(regSysCtl0, setupSysCtl0); err != nil {
		return err
	}
	return d.writeRegister(regSysCtl1, setupSysCtl1)
}

// ---------------- Telemetry ----------------

// ReadLevelRaw returns the raw battery level register.
func (d *Device) ReadLevelRaw() (byte, error) {
	if err := d.readRegister(regLevel, d.r[:1]); err != nil {
		return 0, err
	}
	return d.r[0], nil
}

// BatteryLevel reads and decodes the battery gauge to a percentage.
func (d *Device) BatteryLevel() (uint8, error) {
	raw, err := d.ReadLevelRaw()
	if err != nil {
		return 0, err
	}
	return DecodeLevel(raw), nil
}

// DecodeLevel maps the high nibble of the level register to a percentage.
// Codes outside the documented four yield 0.
func DecodeLevel(raw byte) uint8 {
	switch raw & levelMask {
	case Level25:
		return 25
	case Level50:
		return 50
	case Level75:
		return 75
	case Level100:
		return 100
	default:
		return 0
	}
}

// Status holds READ0 and READ1 as fetched by ReadStatus.
type Status struct {
	Read0 byte
	Read1 byte
}

func (s Status) ChargerConnected() bool { return s.Read0&readChargerIn != 0 }
func (s Status) ChargeFull() bool       { return s.Read1&readChargerFull != 0 }

// ReadStatus fetches READ0 and READ1 in a single two-byte read.
func (d *Device) ReadStatus() (Status, error) {
	if err := d.readRegister(regRead0, d.r[:2]); err != nil {
		return Status{}, err
	}
	return Status{Read0: d.r[0], Read1: d.r[1]}, nil
}

// ---------------- Register access ----------------

func (d *Device) readRegister(reg byte, buf []byte) error {
	d.w[0] = reg
	if err := d.i2c.Tx(d.addr, d.w[:1], buf); err != nil {
		return &IOError{Op: "read", Reg: reg, Err: err}
	}
	return nil
}

func (d *Device) writeRegister(reg, val byte) error {
	d.w[0] = reg
	d.w[1] = val
	if err := d.i2c.Tx(d.addr, d.w[:2], nil); err != nil {
		return &IOError{Op: "write", Reg: reg, Err: err}
	}
	return nil
}

// FailedRegister reports which register a Configure/Read error refers to.
func FailedRegister(err error) (byte, bool) {
	var e *IOError
	if !errors.As(err, &e) {
		return 0, false
	}
	return e.Reg, true
}

// Register addresses exposed for diagnostics and tests.
const (
	RegSysCtl0 = regSysCtl0
	RegSysCtl1 = regSysCtl1
	RegRead0   = regRead0
	RegRead1   = regRead1
	RegLevel   = regLevel
)
