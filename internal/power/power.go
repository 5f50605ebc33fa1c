// Package power models wake causes, the alarms armed before sleeping and
// the sleepers that block until one of them fires.
package power

import (
	"context"
	"fmt"
	"time"
)

// WakeEvent is why the device is running. It is read once per boot and
// never persisted.
type WakeEvent int

const (
	ColdBoot WakeEvent = iota
	ButtonWake
	TimerWake
)

func (w WakeEvent) String() string {
	switch w {
	case ColdBoot:
		return "cold_boot"
	case ButtonWake:
		return "button"
	case TimerWake:
		return "timer"
	default:
		return fmt.Sprintf("wake(%d)", int(w))
	}
}

// ParseWakeEvent accepts the names produced by String and a few aliases
// used on the command line.
func ParseWakeEvent(s string) (WakeEvent, error) {
	switch s {
	case "", "cold", "cold_boot", "boot":
		return ColdBoot, nil
	case "button", "pin":
		return ButtonWake, nil
	case "timer", "time":
		return TimerWake, nil
	default:
		return ColdBoot, fmt.Errorf("power: unknown wake cause %q", s)
	}
}

// SleepRequest is what a wake cycle asks to be armed before sleeping.
type SleepRequest struct {
	// After is the timer alarm, relative to the moment the sleep starts.
	After time.Duration
	// Button arms the button alarm alongside the timer.
	Button bool
	// Backoff marks a retry sleep after a failure.
	Backoff bool
}

// Sleeper blocks until an armed alarm fires and reports which one did.
type Sleeper interface {
	Sleep(ctx context.Context, req SleepRequest) (WakeEvent, error)
}

// Brightness tiers for the status pixel on button wake. Thresholds are
// ascending and exclusive: the first threshold above the light level wins.
var brightnessTiers = []struct {
	below      int
	brightness float64
}{
	{700, 0.5},
	{1500, 0.75},
	{2000, 1.0},
}

// MinBrightness is used when the light level is at or above every
// threshold.
const MinBrightness = 0.25

// BrightnessForLight maps an ambient light reading to a pixel brightness.
func BrightnessForLight(level int) float64 {
	for _, t := range brightnessTiers {
		if level < t.below {
			return t.brightness
		}
	}
	return MinBrightness
}

// TimerSleeper only honours the timer alarm. It is used when no button is
// wired (development hosts, --render-only style runs).
type TimerSleeper struct{}

func (TimerSleeper) Sleep(ctx context.Context, req SleepRequest) (WakeEvent, error) {
	t := time.NewTimer(req.After)
	defer t.Stop()
	select {
	case <-t.C:
		return TimerWake, nil
	case <-ctx.Done():
		return TimerWake, ctx.Err()
	}
}
