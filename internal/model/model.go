package model

import "time"

// CalendarEvent is one row of today's agenda as returned by a calendar
// source. Events are created per cycle, consumed by the renderer and
// discarded afterwards.
type CalendarEvent struct {
	Summary string

	// Start is the ISO-8601 start date-time as delivered by the source
	// (e.g. "2023-05-01T14:30:00-04:00"). Nil means an all-day event.
	Start *string
}

// AllDay reports whether the event carries no start time.
func (e CalendarEvent) AllDay() bool { return e.Start == nil }

// Forecast is the weather snapshot shown next to the agenda.
type Forecast struct {
	// IconKey is the provider's condition key ("clear-day", "rain", ...).
	IconKey      string
	TemperatureF float64
}

// CycleSummary records the outcome of the most recent wake cycle for the
// status server.
type CycleSummary struct {
	CycleID    string        `json:"cycle_id"`
	Wake       string        `json:"wake"`
	StartedAt  time.Time     `json:"started_at"`
	Outcome    string        `json:"outcome"`
	Error      string        `json:"error,omitempty"`
	EventCount int           `json:"event_count"`
	SleepFor   time.Duration `json:"sleep_for_ns"`
}

// EventQuery bounds one calendar fetch. TimeMin and TimeMax are RFC 3339
// strings passed through to the source unchanged.
type EventQuery struct {
	MaxResults int
	TimeMin    string
	TimeMax    string
}
