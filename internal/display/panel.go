package display

import (
	"context"
	"fmt"
	"image"
	"image/draw"

	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/devices/v3/waveshare2in13v2"
	"periph.io/x/host/v3"
)

// epd is the part of the panel driver PanelSink uses.
type epd interface {
	Init() error
	SetUpdateMode(mode waveshare2in13v2.PartialUpdate) error
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
	Sleep() error
}

// PanelSink drives a Waveshare 2.13" V2 e-paper HAT mounted in landscape.
// The driver's origin is set to the top-right corner, so Bounds is 250x122
// and frames are drawn unrotated.
type PanelSink struct {
	dev epd
}

// PanelOrigin is the physical corner the frame's (0,0) maps to.
const PanelOrigin = waveshare2in13v2.TopRight

// OpenPanel opens the HAT on the named SPI port ("SPI0.0"). The returned
// closer releases the port.
func OpenPanel(port string) (*PanelSink, func() error, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("display: periph host init failed: %w", err)
	}
	p, err := spireg.Open(port)
	if err != nil {
		return nil, nil, fmt.Errorf("display: open %s: %w", port, err)
	}
	dev, err := newHat(p)
	if err != nil {
		_ = p.Close()
		return nil, nil, err
	}
	return &PanelSink{dev: dev}, p.Close, nil
}

func newHat(p spi.Port) (*waveshare2in13v2.Dev, error) {
	opts := waveshare2in13v2.EPD2in13v2
	opts.Origin = PanelOrigin
	dev, err := waveshare2in13v2.NewHat(p, &opts)
	if err != nil {
		return nil, fmt.Errorf("display: waveshare hat: %w", err)
	}
	return dev, nil
}

// Show wakes the controller, does a full refresh with the frame and puts
// the controller back into deep sleep. The image stays on the panel.
func (s *PanelSink) Show(_ context.Context, img image.Image) error {
	if err := s.dev.Init(); err != nil {
		return fmt.Errorf("display: panel init: %w", err)
	}
	if err := s.dev.SetUpdateMode(waveshare2in13v2.Full); err != nil {
		return fmt.Errorf("display: panel update mode: %w", err)
	}
	bounds := s.dev.Bounds()
	mono := image1bit.NewVerticalLSB(bounds)
	draw.Draw(mono, bounds, img, img.Bounds().Min, draw.Src)
	if err := s.dev.Draw(bounds, mono, image.Point{}); err != nil {
		return fmt.Errorf("display: panel draw: %w", err)
	}
	if err := s.dev.Sleep(); err != nil {
		return fmt.Errorf("display: panel sleep: %w", err)
	}
	return nil
}

// Bounds is the drawable area in landscape.
func (s *PanelSink) Bounds() image.Rectangle {
	return s.dev.Bounds()
}
