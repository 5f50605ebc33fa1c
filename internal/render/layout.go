// Package render lays out the agenda and forecast on the panel's logical
// canvas and paints it.
package render

import (
	"errors"
	"fmt"
	"image/color"
	"strings"
	"time"

	"gcalpaper/internal/log"
	"gcalpaper/internal/model"
	"gcalpaper/internal/timefmt"
)

// Row placement, in pixels. Horizontal positions that depend on the
// canvas width are derived by Layout.
const (
	MarginX    = 7
	SummaryX   = 52
	BaseY      = 46
	RowHeight  = 20
	HeaderY    = 16
	SeparatorY = 30
	IconY      = 35
	TempY      = 70

	// weatherInset is the distance of the forecast column's centre from the
	// right edge; separatorInset leaves the separator clear of the icon.
	weatherInset   = 41
	separatorInset = 76

	// Character budgets on the reference canvas for a summary squeezed
	// between the time and the forecast column, and for a summary with
	// the rest of the row to itself. Narrower canvases scale them down.
	TimedSummaryChars  = 28
	AllDaySummaryChars = 40

	// WeatherRows is the number of agenda rows beside the forecast column.
	WeatherRows = 3

	DefaultMaxEvents = 4
)

// Canvas is the size of the drawing surface.
type Canvas struct {
	Width, Height int
}

var (
	// PanelCanvas is the Waveshare 2.13" V2 in landscape.
	PanelCanvas = Canvas{Width: 250, Height: 122}
	// ReferenceCanvas is the 2.9" layout the budgets were tuned on.
	ReferenceCanvas = Canvas{Width: 296, Height: 128}
)

func (c Canvas) weatherX() float64 {
	return float64(c.Width - weatherInset)
}

func (c Canvas) separatorX2() float64 {
	return float64(c.Width - separatorInset)
}

// SummaryChars is the character budget for agenda row i. Timed rows beside
// the forecast column get the narrow budget; every other row the wide one.
func (c Canvas) SummaryChars(i int, timed bool) int {
	ref := ReferenceCanvas
	if timed && i < WeatherRows {
		span := c.Width - weatherInset - SummaryX
		refSpan := ref.Width - weatherInset - SummaryX
		return max(1, TimedSummaryChars*span/refSpan)
	}
	return max(1, AllDaySummaryChars*c.Width/ref.Width)
}

var (
	Black = color.Gray{Y: 0x00}
	Grey  = color.Gray{Y: 0x66}
	White = color.Gray{Y: 0xFF}
)

// FontRole picks one of the faces passed to Draw.
type FontRole int

const (
	FontEvent FontRole = iota
	FontHeader
	FontWeather
)

// Label is a single line of text. X, Y is the left-middle point of the
// text, or its centre when Centered is set.
type Label struct {
	Text     string
	X, Y     float64
	Font     FontRole
	Color    color.Gray
	Centered bool
	// Fallback replaces Text when the role's face isn't available (icon
	// font missing).
	Fallback string
}

type Line struct {
	X1, Y1, X2, Y2 float64
	Color          color.Gray
}

// Frame is the device-independent description of one screen.
type Frame struct {
	Width, Height int
	Background    color.Gray
	Lines         []Line
	Labels        []Label
}

// Input is everything one screen shows.
type Input struct {
	Now      time.Time
	Events   []model.CalendarEvent
	Forecast *model.Forecast
}

// Layout composes frames. The zero value uses DefaultMaxEvents and
// PanelCanvas.
type Layout struct {
	MaxEvents int
	Canvas    Canvas
}

// Compose places the header, up to MaxEvents agenda rows and the forecast.
// Events beyond MaxEvents are dropped.
func (l Layout) Compose(in Input) (Frame, error) {
	maxEvents := l.MaxEvents
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}

	c := l.Canvas
	if c.Width <= 0 || c.Height <= 0 {
		c = PanelCanvas
	}

	if in.Now.IsZero() {
		return Frame{}, errors.New("render: no current time")
	}
	header := timefmt.PrettyDateOf(in.Now)

	f := Frame{
		Width:      c.Width,
		Height:     c.Height,
		Background: White,
		Lines: []Line{
			{X1: MarginX, Y1: SeparatorY, X2: c.separatorX2(), Y2: SeparatorY, Color: Grey},
		},
		Labels: []Label{
			{Text: header, X: MarginX, Y: HeaderY, Font: FontHeader, Color: Black},
		},
	}

	for i, ev := range in.Events {
		if i == maxEvents {
			log.Debug("dropping events beyond the agenda", "shown", maxEvents, "fetched", len(in.Events))
			break
		}
		f.Labels = append(f.Labels, eventLabels(c, i, ev)...)
	}

	if in.Forecast != nil {
		f.Labels = append(f.Labels, forecastLabels(c, *in.Forecast)...)
	}
	return f, nil
}

// RowY is the vertical position of agenda row i.
func RowY(i int) float64 {
	return float64(BaseY + i*RowHeight)
}

func eventLabels(c Canvas, i int, ev model.CalendarEvent) []Label {
	y := RowY(i)
	if ev.AllDay() {
		return []Label{{
			Text:  FirstLine(ev.Summary, c.SummaryChars(i, false)),
			X:     MarginX,
			Y:     y,
			Font:  FontEvent,
			Color: Black,
		}}
	}

	hhmm, err := timefmt.EventTime(*ev.Start)
	if err != nil {
		log.Warn("unreadable event start", "start", *ev.Start, "err", err)
		hhmm = "--:--"
	}
	return []Label{
		{Text: hhmm, X: MarginX, Y: y, Font: FontEvent, Color: Black},
		{Text: FirstLine(ev.Summary, c.SummaryChars(i, true)), X: SummaryX, Y: y, Font: FontEvent, Color: Black},
	}
}

func forecastLabels(c Canvas, fc model.Forecast) []Label {
	glyph, ok := IconGlyph(fc.IconKey)
	if !ok {
		log.Warn("unknown weather icon", "icon", fc.IconKey)
	}
	return []Label{
		{
			Text:     string(glyph),
			Fallback: fc.IconKey,
			X:        c.weatherX(),
			Y:        IconY,
			Font:     FontWeather,
			Color:    Grey,
			Centered: true,
		},
		{
			Text:     FormatTemperature(fc.TemperatureF),
			X:        c.weatherX(),
			Y:        TempY,
			Font:     FontHeader,
			Color:    Grey,
			Centered: true,
		},
	}
}

// FormatTemperature renders a Fahrenheit reading with one decimal.
func FormatTemperature(f float64) string {
	return fmt.Sprintf("%.1f°F", f)
}

// WrapNicely splits text into lines of at most maxChars runes, breaking on
// spaces. A single word longer than maxChars is kept whole on its own
// line. Line breaks in the input are dropped.
func WrapNicely(text string, maxChars int) []string {
	text = strings.NewReplacer("\r", "", "\n", "").Replace(text)
	var lines []string
	var cur []rune
	for _, w := range strings.Split(text, " ") {
		word := []rune(w)
		switch {
		case len(cur) == 0:
			cur = word
		case len(cur)+1+len(word) <= maxChars:
			cur = append(append(cur, ' '), word...)
		default:
			lines = append(lines, string(cur))
			cur = word
		}
	}
	if len(cur) > 0 || len(lines) == 0 {
		lines = append(lines, string(cur))
	}
	return lines
}

// FirstLine keeps only the first wrapped line, hard-truncated to maxChars.
func FirstLine(text string, maxChars int) string {
	first := []rune(WrapNicely(text, maxChars)[0])
	if len(first) > maxChars {
		first = first[:maxChars]
	}
	return string(first)
}
