// Package indicator drives the RGB status pixel(s) used to report wake
// cycle progress.
package indicator

import (
	"fmt"
	"image/color"
	"sync"

	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"
)

// Progress colours.
var (
	Black   = color.RGBA{0, 0, 0, 0xFF}
	Dim     = color.RGBA{0, 15, 0, 0xFF}
	Green   = color.RGBA{0, 255, 0, 0xFF}
	Yellow  = color.RGBA{255, 255, 0, 0xFF}
	Red     = color.RGBA{255, 0, 0, 0xFF}
	Reading = color.RGBA{0xFF, 0xDD, 0x77, 0xFF}
)

// Indicator is a short strip of RGB pixels. Pixel 0 carries progress.
type Indicator interface {
	// SetPixel sets one pixel at full brightness, leaving the others.
	SetPixel(i int, c color.RGBA) error
	// Fill sets every pixel to c scaled by brightness (0..1).
	Fill(c color.RGBA, brightness float64) error
	Off() error
	// Disable turns the strip off and releases it until the next call.
	Disable() error
}

// Strip renders pixels into an RGB byte stream written to an NRZ LED
// driver.
type Strip struct {
	mu     sync.Mutex
	dev    pixelWriter
	pixels []color.RGBA
}

type pixelWriter interface {
	Write(p []byte) (int, error)
	Halt() error
}

func newStrip(dev pixelWriter, n int) *Strip {
	s := &Strip{dev: dev, pixels: make([]color.RGBA, n)}
	for i := range s.pixels {
		s.pixels[i] = Black
	}
	return s
}

// OpenNRZ opens a WS2812 strip of n pixels on the named SPI port
// ("SPI0.0"). The returned closer releases the port.
func OpenNRZ(port string, n int) (*Strip, func() error, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("indicator: periph host init failed: %w", err)
	}
	p, err := spireg.Open(port)
	if err != nil {
		return nil, nil, fmt.Errorf("indicator: open %s: %w", port, err)
	}
	dev, err := newNRZ(p, n)
	if err != nil {
		_ = p.Close()
		return nil, nil, err
	}
	return newStrip(dev, n), p.Close, nil
}

func newNRZ(p spi.Port, n int) (*nrzled.Dev, error) {
	opts := nrzled.DefaultOpts
	opts.NumPixels = n
	opts.Channels = 3
	dev, err := nrzled.NewSPI(p, &opts)
	if err != nil {
		return nil, fmt.Errorf("indicator: nrzled: %w", err)
	}
	return dev, nil
}

func (s *Strip) SetPixel(i int, c color.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.pixels) {
		return fmt.Errorf("indicator: pixel %d out of range [0,%d)", i, len(s.pixels))
	}
	s.pixels[i] = c
	return s.flush()
}

func (s *Strip) Fill(c color.RGBA, brightness float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scaled := Scale(c, brightness)
	for i := range s.pixels {
		s.pixels[i] = scaled
	}
	return s.flush()
}

func (s *Strip) Off() error {
	return s.Fill(Black, 1)
}

func (s *Strip) Disable() error {
	if err := s.Off(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.Halt()
}

func (s *Strip) flush() error {
	buf := make([]byte, 0, 3*len(s.pixels))
	for _, p := range s.pixels {
		buf = append(buf, p.R, p.G, p.B)
	}
	if _, err := s.dev.Write(buf); err != nil {
		return fmt.Errorf("indicator: write: %w", err)
	}
	return nil
}

// Scale multiplies each channel by brightness, clamped to [0,1].
func Scale(c color.RGBA, brightness float64) color.RGBA {
	b := min(max(brightness, 0), 1)
	return color.RGBA{
		R: uint8(float64(c.R)*b + 0.5),
		G: uint8(float64(c.G)*b + 0.5),
		B: uint8(float64(c.B)*b + 0.5),
		A: 0xFF,
	}
}

// Nop discards everything. Used when no strip is wired.
type Nop struct{}

func (Nop) SetPixel(int, color.RGBA) error { return nil }
func (Nop) Fill(color.RGBA, float64) error { return nil }
func (Nop) Off() error { return nil }
func (Nop) Disable() error { return nil }
