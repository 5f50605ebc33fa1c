// Package buzzer drives a piezo speaker from a PWM-capable GPIO.
package buzzer

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Low battery alert pattern.
const (
	AlertFrequency = 2600 * physic.Hertz
	AlertBeep      = 100 * time.Millisecond
	AlertGap       = 200 * time.Millisecond
	AlertBeeps     = 3
)

type Buzzer interface {
	Tone(ctx context.Context, f physic.Frequency, d time.Duration) error
}

// PWM plays square waves on a gpio pin at 50% duty.
type PWM struct {
	pin   gpio.PinOut
	sleep func(context.Context, time.Duration) error
}

func NewPWM(pin gpio.PinOut) *PWM {
	return &PWM{pin: pin, sleep: sleepCtx}
}

// OpenPWM initializes periph and resolves the pin by name ("GPIO12").
func OpenPWM(name string) (*PWM, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("buzzer: periph host init failed: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("buzzer: gpio %s not found", name)
	}
	return NewPWM(p), nil
}

func (b *PWM) Tone(ctx context.Context, f physic.Frequency, d time.Duration) error {
	if err := b.pin.PWM(gpio.DutyHalf, f); err != nil {
		return fmt.Errorf("buzzer: pwm %s: %w", f, err)
	}
	err := b.sleep(ctx, d)
	if outErr := b.pin.Out(gpio.Low); outErr != nil && err == nil {
		err = fmt.Errorf("buzzer: silence: %w", outErr)
	}
	return err
}

// Nop is a silent Buzzer.
type Nop struct{}

func (Nop) Tone(context.Context, physic.Frequency, time.Duration) error { return nil }

// LowBattery plays the low battery alert: AlertBeeps tones, each followed
// by AlertGap of silence.
func LowBattery(ctx context.Context, b Buzzer) error {
	for range AlertBeeps {
		if err := b.Tone(ctx, AlertFrequency, AlertBeep); err != nil {
			return err
		}
		if err := sleepCtx(ctx, AlertGap); err != nil {
			return err
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
