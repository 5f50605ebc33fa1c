package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"gcalpaper/internal/log"
)

// vevent is the subset of a VEVENT needed to place it on today's agenda.
type vevent struct {
	UID     string
	Summary string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule   string
	ExDates []time.Time

	// RecurrenceID is set on a VEVENT that replaces one instance of a
	// recurring series.
	RecurrenceID *time.Time
}

// parseFeed decodes an ICS payload. Date-only values are placed in loc.
// Events that can't be decoded are logged and skipped.
func parseFeed(src Source, body []byte, loc *time.Location) ([]vevent, error) {
	if len(body) == 0 {
		return nil, errors.New("ics: empty body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ics: parse %s: %w", src.ID, err)
	}

	var out []vevent
	for _, ve := range cal.Events() {
		ev, err := decodeEvent(ve, loc)
		if err != nil {
			log.Warn("skipping unreadable VEVENT", "source", src.ID, "err", err)
			continue
		}
		out = append(out, ev)
	}
	log.Debug("ics feed parsed", "source", src.ID, "events", len(out))
	return out, nil
}

func decodeEvent(ve *ical.VEvent, loc *time.Location) (vevent, error) {
	var ev vevent

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, errors.New("missing UID")
	}
	ev.UID = uid.Value
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Summary = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return ev, errors.New("missing DTSTART")
	}
	ev.AllDay = isDateOnly(dtStart)

	if ev.AllDay {
		start, err := parseValue(dtStart.Value, loc)
		if err != nil {
			return ev, fmt.Errorf("DTSTART: %w", err)
		}
		ev.Start = start
		ev.End = start.AddDate(0, 0, 1)
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if end, err := parseValue(dtEnd.Value, loc); err == nil && end.After(start) {
				ev.End = end
			}
		}
	} else {
		start, err := ve.GetStartAt()
		if err != nil {
			return ev, fmt.Errorf("DTSTART: %w", err)
		}
		ev.Start = start
		ev.End = start
		if end, err := ve.GetEndAt(); err == nil && end.After(start) {
			ev.End = end
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.RRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseValue(part, ev.Start.Location()); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		if t, err := parseValue(p.Value, ev.Start.Location()); err == nil {
			ev.RecurrenceID = &t
		}
	}
	return ev, nil
}

func isDateOnly(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// parseValue reads a DATE, floating DATE-TIME or UTC DATE-TIME value.
// Floating and date values are interpreted in loc.
func parseValue(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
