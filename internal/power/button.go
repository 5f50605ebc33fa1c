package power

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// edgePollSlice bounds a single WaitForEdge call so context cancellation is
// noticed within a second.
const edgePollSlice = time.Second

// ButtonSleeper waits for either the timer or a falling edge on the button
// pin (active low, pulled up), mirroring a level-triggered pin alarm.
type ButtonSleeper struct {
	pin gpio.PinIn
	now func() time.Time
}

// NewButtonSleeper configures pin as a pulled-up input with falling-edge
// detection.
func NewButtonSleeper(pin gpio.PinIn) (*ButtonSleeper, error) {
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("power: configure button %s: %w", pin, err)
	}
	return &ButtonSleeper{pin: pin, now: time.Now}, nil
}

// OpenButtonSleeper initializes periph and resolves the pin by name
// ("GPIO5").
func OpenButtonSleeper(name string) (*ButtonSleeper, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("power: periph host init failed: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("power: gpio %s not found", name)
	}
	return NewButtonSleeper(p)
}

func (b *ButtonSleeper) Sleep(ctx context.Context, req SleepRequest) (WakeEvent, error) {
	if !req.Button {
		return TimerSleeper{}.Sleep(ctx, req)
	}

	// A press that is still held from the last wake must not retrigger.
	if b.pin.Read() == gpio.Low {
		b.waitRelease(ctx)
	}

	deadline := b.now().Add(req.After)
	for {
		if err := ctx.Err(); err != nil {
			return TimerWake, err
		}
		remaining := deadline.Sub(b.now())
		if remaining <= 0 {
			return TimerWake, nil
		}
		if b.pin.WaitForEdge(min(remaining, edgePollSlice)) {
			return ButtonWake, nil
		}
	}
}

func (b *ButtonSleeper) waitRelease(ctx context.Context) {
	for b.pin.Read() == gpio.Low && ctx.Err() == nil {
		time.Sleep(20 * time.Millisecond)
	}
}
