// Package device runs the wake cycle: it decides what a wake is for,
// drives the fetch steps, paints the result and says how long to sleep.
package device

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"gcalpaper/internal/backoff"
	"gcalpaper/internal/battery"
	"gcalpaper/internal/buzzer"
	"gcalpaper/internal/display"
	"gcalpaper/internal/indicator"
	"gcalpaper/internal/light"
	"gcalpaper/internal/log"
	"gcalpaper/internal/model"
	"gcalpaper/internal/power"
	"gcalpaper/internal/render"
	"gcalpaper/internal/timefmt"
)

// Clock supplies the local wall time at the start of a cycle.
type Clock interface {
	Now(ctx context.Context) (time.Time, error)
}

// Authenticator keeps the calendar access token fresh.
type Authenticator interface {
	Refresh(ctx context.Context) error
	// Expired reports whether the token's lifetime has elapsed since it
	// was obtained.
	Expired() bool
}

type CalendarSource interface {
	Events(ctx context.Context, q model.EventQuery) ([]model.CalendarEvent, error)
}

type WeatherSource interface {
	Forecast(ctx context.Context) (model.Forecast, error)
}

// Session holds every collaborator of the wake cycle. Build it with New.
type Session struct {
	backoff   *backoff.Tracker
	clock     Clock
	auth      Authenticator
	calendar  CalendarSource
	weather   WeatherSource
	pixel     indicator.Indicator
	light     light.Sensor
	battery   battery.Reader
	buzzer    buzzer.Buzzer
	sink      display.Sink
	fonts     render.Fonts
	layout    render.Layout
	schedule  cron.Schedule
	rollover  timefmt.RolloverMode
	lowVolts  float64
	maxEvents int

	now   func() time.Time
	pause func(ctx context.Context, d time.Duration) error
	newID func() string

	mu   sync.RWMutex
	last model.CycleSummary
}

// Options configures New. Backoff, Clock, Auth, Calendar, Weather, Sink and
// Schedule are required; the peripherals default to no-ops.
type Options struct {
	Backoff   *backoff.Tracker
	Clock     Clock
	Auth      Authenticator
	Calendar  CalendarSource
	Weather   WeatherSource
	Indicator indicator.Indicator
	Light     light.Sensor
	Battery   battery.Reader
	Buzzer    buzzer.Buzzer
	Sink      display.Sink
	Fonts     render.Fonts
	Schedule  cron.Schedule
	Rollover  timefmt.RolloverMode
	// Canvas is the frame size; zero selects render.PanelCanvas.
	Canvas render.Canvas

	// LowBatteryVolts triggers the low battery alert. Zero disables it.
	LowBatteryVolts float64
	MaxEvents       int
}

func New(o Options) (*Session, error) {
	switch {
	case o.Backoff == nil:
		return nil, errors.New("device: backoff tracker is required")
	case o.Clock == nil:
		return nil, errors.New("device: clock is required")
	case o.Auth == nil:
		return nil, errors.New("device: authenticator is required")
	case o.Calendar == nil:
		return nil, errors.New("device: calendar source is required")
	case o.Weather == nil:
		return nil, errors.New("device: weather source is required")
	case o.Sink == nil:
		return nil, errors.New("device: display sink is required")
	case o.Schedule == nil:
		return nil, errors.New("device: refresh schedule is required")
	}
	s := &Session{
		backoff:   o.Backoff,
		clock:     o.Clock,
		auth:      o.Auth,
		calendar:  o.Calendar,
		weather:   o.Weather,
		pixel:     o.Indicator,
		light:     o.Light,
		battery:   o.Battery,
		buzzer:    o.Buzzer,
		sink:      o.Sink,
		fonts:     o.Fonts,
		layout:    render.Layout{MaxEvents: o.MaxEvents, Canvas: o.Canvas},
		schedule:  o.Schedule,
		rollover:  o.Rollover,
		lowVolts:  o.LowBatteryVolts,
		maxEvents: o.MaxEvents,
		now:       time.Now,
		pause:     sleepCtx,
		newID:     newCycleID,
	}
	if s.pixel == nil {
		s.pixel = indicator.Nop{}
	}
	if s.light == nil {
		s.light = light.Fixed{}
	}
	if s.battery == nil {
		s.battery = battery.Fixed{}
	}
	if s.buzzer == nil {
		s.buzzer = buzzer.Nop{}
	}
	if s.maxEvents <= 0 {
		s.maxEvents = render.DefaultMaxEvents
	}
	return s, nil
}

// HandleWake runs the work for one wake and returns the alarms to arm
// before sleeping. A non-nil error is fatal: no further sleep is
// scheduled.
func (s *Session) HandleWake(ctx context.Context, wake power.WakeEvent) (power.SleepRequest, error) {
	switch wake {
	case power.ButtonWake:
		return s.buttonWake(ctx)
	case power.TimerWake:
		s.flash(ctx)
		return s.cycle(ctx, wake)
	case power.ColdBoot:
		return s.cycle(ctx, wake)
	default:
		return power.SleepRequest{}, fmt.Errorf("device: unknown wake event %v", wake)
	}
}

// buttonWake lights the pixel as a reading light, dimmer in brighter rooms,
// and goes back to sleep without fetching.
func (s *Session) buttonWake(ctx context.Context) (power.SleepRequest, error) {
	level, err := s.light.Read(ctx)
	brightness := power.BrightnessForLight(level)
	if err != nil {
		log.Warn("light sensor read failed, using dimmest setting", "err", err)
		brightness = power.MinBrightness
	}
	log.Info("button wake", "light", level, "brightness", brightness)

	if err := s.pixel.Fill(indicator.Reading, brightness); err != nil {
		log.Warn("indicator fill failed", "err", err)
	}
	_ = s.pause(ctx, 3*time.Second)
	if err := s.pixel.Off(); err != nil {
		log.Warn("indicator off failed", "err", err)
	}
	return s.refreshRequest(), nil
}

// flash blinks pixel 0 yellow four times to show a scheduled wake.
func (s *Session) flash(ctx context.Context) {
	for range 4 {
		if s.pause(ctx, 500*time.Millisecond) != nil {
			return
		}
		s.setPixel(indicator.Yellow)
		if s.pause(ctx, 250*time.Millisecond) != nil {
			return
		}
		s.setPixel(indicator.Black)
	}
}

func (s *Session) setPixel(c color.RGBA) {
	if err := s.pixel.SetPixel(0, c); err != nil {
		log.Debug("indicator update failed", "err", err)
	}
}

// refreshRequest arms the button and a timer for the next scheduled
// refresh.
func (s *Session) refreshRequest() power.SleepRequest {
	now := s.now()
	after := s.schedule.Next(now).Sub(now)
	if after <= 0 {
		after = time.Minute
	}
	return power.SleepRequest{After: after, Button: true}
}

// PrepareSleep turns the indicator off before the device sleeps.
func (s *Session) PrepareSleep() {
	if err := s.pixel.Disable(); err != nil {
		log.Debug("indicator disable failed", "err", err)
	}
}

// Fail marks a fatal stop: the pixel stays solid red.
func (s *Session) Fail() {
	s.setPixel(indicator.Red)
}

// LastCycle returns the summary of the most recent fetch cycle.
func (s *Session) LastCycle() model.CycleSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Session) record(c model.CycleSummary) {
	s.mu.Lock()
	s.last = c
	s.mu.Unlock()
}

// Run handles wake and then keeps sleeping and handling wakes until ctx is
// cancelled or a fatal error occurs. With once set it returns after the
// first wake. Cancellation is not an error.
func (s *Session) Run(ctx context.Context, sleeper power.Sleeper, wake power.WakeEvent, once bool) error {
	for {
		req, err := s.HandleWake(ctx, wake)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				log.Info("wake cycle interrupted", "err", err)
				return nil
			}
			return err
		}
		log.Info("sleeping", "for", req.After.String(), "backoff", req.Backoff, "button", req.Button)
		if once {
			return nil
		}
		s.PrepareSleep()
		wake, err = sleeper.Sleep(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("device: sleep: %w", err)
		}
	}
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
