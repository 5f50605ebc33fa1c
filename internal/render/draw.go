package render

import (
	"fmt"
	"image"
	"os"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// Font sizes in points at 72 DPI, so points equal pixels.
const (
	HeaderSize  = 13
	EventSize   = 12
	WeatherSize = 48
)

// Fonts holds one face per FontRole. A nil face makes Draw use the
// label's Fallback text in the event face.
type Fonts struct {
	Header  font.Face
	Event   font.Face
	Weather font.Face
}

func (f Fonts) face(r FontRole) font.Face {
	switch r {
	case FontHeader:
		return f.Header
	case FontWeather:
		return f.Weather
	default:
		return f.Event
	}
}

// LoadFonts builds the bundled Go fonts and, if weatherTTF is set, the
// Weather Icons face from that file.
func LoadFonts(weatherTTF string) (Fonts, error) {
	header, err := parseFace(gobold.TTF, HeaderSize)
	if err != nil {
		return Fonts{}, fmt.Errorf("render: header font: %w", err)
	}
	event, err := parseFace(goregular.TTF, EventSize)
	if err != nil {
		return Fonts{}, fmt.Errorf("render: event font: %w", err)
	}
	fonts := Fonts{Header: header, Event: event}

	if weatherTTF != "" {
		data, err := os.ReadFile(weatherTTF)
		if err != nil {
			return Fonts{}, fmt.Errorf("render: weather font: %w", err)
		}
		if fonts.Weather, err = parseFace(data, WeatherSize); err != nil {
			return Fonts{}, fmt.Errorf("render: weather font %s: %w", weatherTTF, err)
		}
	}
	return fonts, nil
}

func parseFace(ttf []byte, size float64) (font.Face, error) {
	f, err := truetype.Parse(ttf)
	if err != nil {
		return nil, err
	}
	return truetype.NewFace(f, &truetype.Options{Size: size, Hinting: font.HintingFull}), nil
}

// Draw paints a frame.
func Draw(f Frame, fonts Fonts) image.Image {
	dc := gg.NewContext(f.Width, f.Height)
	dc.SetColor(f.Background)
	dc.Clear()

	dc.SetLineWidth(1)
	for _, l := range f.Lines {
		dc.SetColor(l.Color)
		dc.DrawLine(l.X1, l.Y1, l.X2, l.Y2)
		dc.Stroke()
	}

	for _, l := range f.Labels {
		text := l.Text
		face := fonts.face(l.Font)
		if face == nil {
			face, text = fonts.Event, l.Fallback
		}
		if face == nil || text == "" {
			continue
		}
		dc.SetFontFace(face)
		dc.SetColor(l.Color)
		ax := 0.0
		if l.Centered {
			ax = 0.5
		}
		dc.DrawStringAnchored(text, l.X, l.Y, ax, 0.5)
	}
	return dc.Image()
}
