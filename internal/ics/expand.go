package ics

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"gcalpaper/internal/log"
)

// maxInstancesPerSeries caps RRULE expansion of a single series inside the
// query window.
const maxInstancesPerSeries = 500

// instance is one concrete occurrence inside the query window.
type instance struct {
	Summary string
	Start   time.Time
	End     time.Time
	AllDay  bool
}

// expand turns parsed VEVENTs into the instances that overlap
// [from, to], applying EXDATEs and RECURRENCE-ID overrides, sorted by
// start time.
func expand(events []vevent, from, to time.Time) []instance {
	series := make(map[string][]vevent)
	overrides := make(map[string][]vevent)
	for _, ev := range events {
		if ev.RecurrenceID != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		series[ev.UID] = append(series[ev.UID], ev)
	}

	var out []instance
	for uid, bases := range series {
		for _, ev := range bases {
			if ev.RRule == "" {
				if overlaps(ev.Start, ev.End, from, to) {
					out = append(out, toInstance(ev, ev.Start, ev.End))
				}
				continue
			}
			out = append(out, expandSeries(ev, overrides[uid], from, to)...)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

func expandSeries(ev vevent, overrides []vevent, from, to time.Time) []instance {
	r, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		log.Warn("ignoring unparsable RRULE", "uid", ev.UID, "rrule", ev.RRule, "err", err)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen the lower bound by the event's duration so a series instance
	// that started before the window but is still running is kept.
	dur := ev.End.Sub(ev.Start)
	loc := ev.Start.Location()
	starts := set.Between(from.Add(-dur).In(loc), to.In(loc), true)
	if len(starts) > maxInstancesPerSeries {
		log.Warn("truncating recurring series", "uid", ev.UID, "instances", len(starts))
		starts = starts[:maxInstancesPerSeries]
	}

	var out []instance
	for _, s := range starts {
		e := s.Add(dur)
		if ev.AllDay {
			s = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc)
			e = s.AddDate(0, 0, max(1, int(dur/(24*time.Hour))))
		}
		inst := ev
		if o, ok := findOverride(overrides, s); ok {
			inst, s, e = o, o.Start, o.End
		}
		if overlaps(s, e, from, to) {
			out = append(out, toInstance(inst, s, e))
		}
	}
	return out
}

func findOverride(overrides []vevent, start time.Time) (vevent, bool) {
	for _, o := range overrides {
		if o.RecurrenceID.Equal(start) {
			return o, true
		}
	}
	return vevent{}, false
}

func toInstance(ev vevent, start, end time.Time) instance {
	return instance{Summary: ev.Summary, Start: start, End: end, AllDay: ev.AllDay}
}

// overlaps reports whether [s, e) intersects [from, to]. A zero-length
// event counts when its start lies inside the window.
func overlaps(s, e, from, to time.Time) bool {
	if s.After(to) {
		return false
	}
	if e.Equal(s) {
		return !s.Before(from)
	}
	return e.After(from)
}
