package device

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"gcalpaper/internal/buzzer"
	"gcalpaper/internal/fault"
	"gcalpaper/internal/indicator"
	"gcalpaper/internal/log"
	"gcalpaper/internal/model"
	"gcalpaper/internal/power"
	"gcalpaper/internal/render"
	"gcalpaper/internal/timefmt"
)

func newCycleID() string {
	return uuid.NewString()
}

// cycleRun carries the per-cycle context through the steps.
type cycleRun struct {
	id      string
	wake    power.WakeEvent
	started time.Time
}

func (c cycleRun) kv(kv ...any) []any {
	return append([]any{"cycle_id", c.id}, kv...)
}

// cycle is the full refresh: time sync, token refresh, calendar, weather,
// then render. The first failing step ends the wake with a backoff sleep.
func (s *Session) cycle(ctx context.Context, wake power.WakeEvent) (power.SleepRequest, error) {
	run := cycleRun{id: s.newID(), wake: wake, started: s.now()}
	log.Info("wake cycle start", run.kv("wake", wake.String())...)
	s.setPixel(indicator.Dim)

	s.checkBattery(ctx, run)
	s.setPixel(indicator.Green)

	now, err := s.clock.Now(ctx)
	if err != nil {
		return s.fail(ctx, run, "time sync", err)
	}
	timeMin := timefmt.ToRFC3339(now)
	timeMax := timefmt.EndOfDayBound(now, s.rollover)
	if !timefmt.IsValidBound(timeMax) {
		log.Warn("end of day bound is not a real date", run.kv("time_max", timeMax)...)
	}

	if err := s.auth.Refresh(ctx); err != nil {
		s.setPixel(indicator.Red)
		return s.fail(ctx, run, "token refresh", err)
	}
	if s.auth.Expired() {
		log.Info("access token expired, refreshing", run.kv()...)
		if err := s.auth.Refresh(ctx); err != nil {
			s.setPixel(indicator.Red)
			return s.fail(ctx, run, "token refresh", err)
		}
	}

	s.setPixel(indicator.Yellow)
	events, err := s.calendar.Events(ctx, model.EventQuery{
		MaxResults: s.maxEvents,
		TimeMin:    timeMin,
		TimeMax:    timeMax,
	})
	if err != nil {
		return s.fail(ctx, run, "calendar fetch", err)
	}
	log.Info("calendar fetched", run.kv("events", len(events), "from", timeMin, "to", timeMax)...)

	forecast, err := s.weather.Forecast(ctx)
	if err != nil {
		return s.fail(ctx, run, "weather fetch", err)
	}
	s.setPixel(indicator.Green)

	if err := s.backoff.Clear(ctx); err != nil {
		log.Error("clearing backoff state failed", err, run.kv()...)
	}
	s.show(ctx, run, render.Input{Now: now, Events: events, Forecast: &forecast})

	req := s.refreshRequest()
	s.record(model.CycleSummary{
		CycleID:    run.id,
		Wake:       wake.String(),
		StartedAt:  run.started,
		Outcome:    "ok",
		EventCount: len(events),
		SleepFor:   req.After,
	})
	log.Info("wake cycle done", run.kv("events", len(events), "next_in", req.After.String())...)
	return req, nil
}

// show renders and displays. A display failure is logged, not retried:
// the data was fetched and the backoff state is already clear.
func (s *Session) show(ctx context.Context, run cycleRun, in render.Input) {
	frame, err := s.layout.Compose(in)
	if err != nil {
		log.Error("layout failed", err, run.kv()...)
		return
	}
	if err := s.sink.Show(ctx, render.Draw(frame, s.fonts)); err != nil {
		log.Error("display failed", err, run.kv()...)
	}
}

func (s *Session) checkBattery(ctx context.Context, run cycleRun) {
	if s.lowVolts <= 0 {
		return
	}
	st, err := s.battery.Read(ctx)
	if err != nil {
		log.Warn("battery read failed", run.kv("err", err)...)
		return
	}
	if !st.Low(s.lowVolts) {
		log.Debug("battery ok", run.kv("volts", st.Volts(), "percent", st.Percent)...)
		return
	}
	log.Warn("battery low, needs charging", run.kv("volts", st.Volts(), "threshold", s.lowVolts)...)
	if err := buzzer.LowBattery(ctx, s.buzzer); err != nil {
		log.Warn("low battery alert failed", run.kv("err", err)...)
	}
}

// fail records one failed attempt and asks for a backoff sleep. Once the
// attempt ceiling is reached it returns the BackoffExhausted error
// instead.
func (s *Session) fail(ctx context.Context, run cycleRun, step string, cause error) (power.SleepRequest, error) {
	if ctx.Err() != nil {
		return power.SleepRequest{}, ctx.Err()
	}
	kind := fault.KindOf(cause)
	log.Error(step+" failed", cause, run.kv("kind", kind.String())...)

	summary := model.CycleSummary{
		CycleID:   run.id,
		Wake:      run.wake.String(),
		StartedAt: run.started,
		Outcome:   step + " failed",
		Error:     cause.Error(),
	}

	st, err := s.backoff.RecordFailure(ctx)
	if errors.Is(err, fault.ErrBackoffExhausted) {
		s.setPixel(indicator.Red)
		summary.Outcome = "backoff exhausted"
		s.record(summary)
		return power.SleepRequest{}, err
	}
	if err != nil {
		log.Error("recording backoff failed", err, run.kv()...)
	}

	delay, derr := s.backoff.CurrentDelay(ctx)
	if derr != nil || delay <= 0 {
		delay = time.Duration(st.DelaySeconds) * time.Second
	}
	if delay <= 0 {
		delay = backoffFloor
	}
	summary.SleepFor = delay
	s.record(summary)

	log.Warn("exponential backoff", run.kv("sleep", delay.String(), "attempt", st.AttemptCount)...)
	return power.SleepRequest{After: delay, Button: true, Backoff: true}, nil
}

// backoffFloor is used only when the backoff store can't be read back.
const backoffFloor = 15 * time.Second
