package light

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// Sensor reads the ambient light level as a raw 16-bit count. Brighter
// rooms give larger values.
type Sensor interface {
	Read(ctx context.Context) (int, error)
}

// BH1750 opcodes.
const (
	opPowerOn       = 0x01
	opOneTimeHRes   = 0x20
	measurementTime = 180 * time.Millisecond
)

// i2cSensor talks to a BH1750 ambient light sensor (address 0x23 with ADDR
// low, 0x5C with ADDR high).
type i2cSensor struct {
	dev   *i2c.Dev
	sleep func(time.Duration)
}

// NewI2C wraps an already opened bus.
func NewI2C(bus i2c.Bus, addr uint16) Sensor {
	return &i2cSensor{
		dev:   &i2c.Dev{Bus: bus, Addr: addr},
		sleep: time.Sleep,
	}
}

// OpenI2C initializes periph and opens the named bus ("" for the default).
// The returned closer releases the bus.
func OpenI2C(busName string, addr uint16) (Sensor, func() error, error) {
	if runtime.GOOS != "linux" {
		return nil, nil, errors.New("light: i2c sensor unavailable on this platform")
	}
	if _, err := host.Init(); err != nil {
		return nil, nil, err
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, err
	}
	return NewI2C(bus, addr), bus.Close, nil
}

// Read triggers a one-shot high resolution measurement and returns the raw
// count.
func (s *i2cSensor) Read(_ context.Context) (int, error) {
	if err := s.dev.Tx([]byte{opPowerOn}, nil); err != nil {
		return 0, fmt.Errorf("light: power on: %w", err)
	}
	if err := s.dev.Tx([]byte{opOneTimeHRes}, nil); err != nil {
		return 0, fmt.Errorf("light: start measurement: %w", err)
	}
	s.sleep(measurementTime)

	buf := make([]byte, 2)
	if err := s.dev.Tx(nil, buf); err != nil {
		return 0, fmt.Errorf("light: read: %w", err)
	}
	return int(binary.BigEndian.Uint16(buf)), nil
}

// Fixed is a Sensor that always reports Level. Used when no sensor is wired.
type Fixed struct {
	Level int
	Err   error
}

func (f Fixed) Read(_ context.Context) (int, error) {
	return f.Level, f.Err
}
