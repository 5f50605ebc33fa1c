package power

import (
	"context"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func TestBrightnessForLight(t *testing.T) {
	tests := []struct {
		level int
		want  float64
	}{
		{0, 0.5},
		{650, 0.5},
		{699, 0.5},
		{700, 0.75},
		{1499, 0.75},
		{1500, 1.0},
		{1800, 1.0},
		{1999, 1.0},
		{2000, 0.25},
		{40000, 0.25},
	}
	for _, tt := range tests {
		if got := BrightnessForLight(tt.level); got != tt.want {
			t.Errorf("BrightnessForLight(%d) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestParseWakeEvent(t *testing.T) {
	for in, want := range map[string]WakeEvent{
		"":       ColdBoot,
		"cold":   ColdBoot,
		"timer":  TimerWake,
		"button": ButtonWake,
	} {
		got, err := ParseWakeEvent(in)
		if err != nil || got != want {
			t.Errorf("ParseWakeEvent(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseWakeEvent("lightning"); err == nil {
		t.Error("expected error for unknown wake cause")
	}
}

func TestTimerSleeper(t *testing.T) {
	got, err := TimerSleeper{}.Sleep(context.Background(), SleepRequest{After: time.Millisecond})
	if err != nil || got != TimerWake {
		t.Errorf("Sleep() = %v, %v; want TimerWake", got, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (TimerSleeper{}).Sleep(ctx, SleepRequest{After: time.Hour}); err == nil {
		t.Error("expected context error")
	}
}

func TestButtonSleeper_ButtonPress(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO5", L: gpio.High, EdgesChan: make(chan gpio.Level, 1)}
	s, err := NewButtonSleeper(pin)
	if err != nil {
		t.Fatalf("NewButtonSleeper() error = %v", err)
	}

	pin.EdgesChan <- gpio.Low

	got, err := s.Sleep(context.Background(), SleepRequest{After: 5 * time.Second, Button: true})
	if err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}
	if got != ButtonWake {
		t.Errorf("Sleep() = %v, want ButtonWake", got)
	}
}

func TestButtonSleeper_TimerExpires(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO5", L: gpio.High, EdgesChan: make(chan gpio.Level)}
	s, err := NewButtonSleeper(pin)
	if err != nil {
		t.Fatalf("NewButtonSleeper() error = %v", err)
	}

	got, err := s.Sleep(context.Background(), SleepRequest{After: 30 * time.Millisecond, Button: true})
	if err != nil {
		t.Fatalf("Sleep() error = %v", err)
	}
	if got != TimerWake {
		t.Errorf("Sleep() = %v, want TimerWake", got)
	}
}
