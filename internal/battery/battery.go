package battery

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Status is the battery state reported to the wake cycle and the web API.
type Status struct {
	// Percent is the battery level in 0–100%.
	Percent int `json:"percent"`
	// VoltageMv is the battery voltage in millivolts, 0 if unknown.
	VoltageMv int `json:"voltage_mv"`
}

// Voltage returns the battery voltage as a periph physical quantity.
func (s Status) Voltage() physic.ElectricPotential {
	return physic.ElectricPotential(s.VoltageMv) * physic.MilliVolt
}

// Volts returns the battery voltage in volts.
func (s Status) Volts() float64 {
	return float64(s.VoltageMv) / 1000
}

// Low reports whether a known voltage is strictly below threshold volts.
// An unknown voltage is never low.
func (s Status) Low(threshold float64) bool {
	return s.VoltageMv > 0 && s.Volts() < threshold
}

// Reader abstracts how we obtain battery information: a fixed value on
// development hosts, a PiSugar3 over I2C on the device.
type Reader interface {
	Read(ctx context.Context) (Status, error)
}

// PiSugar3 registers.
const (
	regVoltageHigh = 0x22
	regVoltageLow  = 0x23
	regPercent     = 0x2A

	// DefaultAddr is the PiSugar3 7-bit address.
	DefaultAddr = 0x57
)

// i2cReader talks to a PiSugar3 battery controller.
type i2cReader struct {
	dev *i2c.Dev
}

// NewI2CReader wraps an already opened bus.
func NewI2CReader(bus i2c.Bus, addr uint16) Reader {
	return &i2cReader{dev: &i2c.Dev{Bus: bus, Addr: addr}}
}

// OpenI2CReader initializes periph and opens busName ("" for the default,
// /dev/i2c-1 on a Raspberry Pi). The returned closer releases the bus.
func OpenI2CReader(busName string, addr uint16) (Reader, func() error, error) {
	if runtime.GOOS != "linux" {
		return nil, nil, errors.New("battery: i2c reader unavailable on this platform")
	}
	if _, err := host.Init(); err != nil {
		return nil, nil, err
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, err
	}
	return NewI2CReader(bus, addr), bus.Close, nil
}

func (r *i2cReader) readReg(reg byte) (byte, error) {
	buf := []byte{0}
	if err := r.dev.Tx([]byte{reg}, buf); err != nil {
		return 0, fmt.Errorf("battery: read reg 0x%02x: %w", reg, err)
	}
	return buf[0], nil
}

func (r *i2cReader) Read(_ context.Context) (Status, error) {
	high, err := r.readReg(regVoltageHigh)
	if err != nil {
		return Status{}, err
	}
	low, err := r.readReg(regVoltageLow)
	if err != nil {
		return Status{}, err
	}
	pct, err := r.readReg(regPercent)
	if err != nil {
		return Status{}, err
	}
	if pct > 100 {
		pct = 100
	}
	return Status{
		Percent:   int(pct),
		VoltageMv: int(uint16(high)<<8 | uint16(low)),
	}, nil
}

// Fixed always reports Status. Used on hosts without a battery controller.
type Fixed struct {
	Status Status
	Err    error
}

func (f Fixed) Read(_ context.Context) (Status, error) {
	return f.Status, f.Err
}

// DefaultReader tries the PiSugar3 on the default bus and falls back to a
// full, unknown-voltage battery when it can't be reached. The closer is
// always non-nil.
func DefaultReader(busName string, addr uint16) (Reader, func() error) {
	nop := func() error { return nil }
	r, closer, err := OpenI2CReader(busName, addr)
	if err != nil {
		return Fixed{Status: Status{Percent: 100}}, nop
	}
	if _, err := r.Read(context.Background()); err != nil {
		_ = closer()
		return Fixed{Status: Status{Percent: 100}}, nop
	}
	return r, closer
}
