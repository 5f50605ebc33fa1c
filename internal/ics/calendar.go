// Package ics serves today's agenda from one or more subscribed iCalendar
// feeds, as an alternative to the Google Calendar API.
package ics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gcalpaper/internal/config"
	"gcalpaper/internal/fault"
	"gcalpaper/internal/log"
	"gcalpaper/internal/model"
)

// Calendar merges the feeds of several sources into one ordered agenda.
type Calendar struct {
	fetcher *Fetcher
	sources []Source
	loc     *time.Location
}

// NewCalendar returns a Calendar reading sources through f. Floating and
// all-day times are placed in loc.
func NewCalendar(f *Fetcher, sources []Source, loc *time.Location) *Calendar {
	if loc == nil {
		loc = time.Local
	}
	return &Calendar{fetcher: f, sources: sources, loc: loc}
}

// SourcesFromConfig converts the configured subscriptions.
func SourcesFromConfig(list []config.ICSConfig) []Source {
	out := make([]Source, 0, len(list))
	for i, c := range list {
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("ics-%d", i)
		}
		out = append(out, Source{ID: id, URL: c.URL})
	}
	return out
}

// Events returns up to q.MaxResults instances overlapping
// [q.TimeMin, q.TimeMax] across every feed, ordered by start. A feed that
// fails is skipped; the call fails only when no feed could be read.
func (c *Calendar) Events(ctx context.Context, q model.EventQuery) ([]model.CalendarEvent, error) {
	from, err := parseBound(q.TimeMin)
	if err != nil {
		return nil, fmt.Errorf("ics: time_min: %w", err)
	}
	to, err := parseBound(q.TimeMax)
	if err != nil {
		return nil, fmt.Errorf("ics: time_max: %w", err)
	}

	var all []vevent
	var errs []error
	for _, src := range c.sources {
		res, err := c.fetcher.fetch(ctx, src)
		if err != nil {
			log.Error("ics fetch failed", err, "source", src.ID, "host", redactURL(src.URL))
			errs = append(errs, err)
			continue
		}
		evs, err := parseFeed(src, res.Body, c.loc)
		if err != nil {
			log.Error("ics parse failed", err, "source", src.ID)
			errs = append(errs, err)
			continue
		}
		all = append(all, evs...)
	}
	if len(errs) > 0 && len(errs) == len(c.sources) {
		return nil, fault.Network("ics fetch", errors.Join(errs...))
	}

	instances := expand(all, from, to)
	events := make([]model.CalendarEvent, 0, min(len(instances), max(q.MaxResults, 0)))
	for _, inst := range instances {
		if q.MaxResults > 0 && len(events) == q.MaxResults {
			break
		}
		ev := model.CalendarEvent{Summary: inst.Summary}
		if !inst.AllDay {
			s := inst.Start.In(c.loc).Format(time.RFC3339)
			ev.Start = &s
		}
		events = append(events, ev)
	}
	return events, nil
}

// parseBound reads an RFC 3339 query bound. A bound with an out of range
// day (as produced by the legacy end-of-day rollover) is normalized rather
// than rejected.
func parseBound(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	var y, mo, d, h, mi, sec int
	if _, err := fmt.Sscanf(s, "%4d-%2d-%2dT%2d:%2d:%2dZ", &y, &mo, &d, &h, &mi, &sec); err != nil {
		return time.Time{}, fmt.Errorf("invalid bound %q", s)
	}
	return time.Date(y, time.Month(mo), d, h, mi, sec, 0, time.UTC), nil
}
