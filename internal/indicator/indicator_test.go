package indicator

import (
	"bytes"
	"image/color"
	"testing"
)

type fakeDev struct {
	writes [][]byte
	halted bool
}

func (f *fakeDev) Write(p []byte) (int, error) {
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (f *fakeDev) Halt() error {
	f.halted = true
	return nil
}

func TestStrip_SetPixel(t *testing.T) {
	dev := &fakeDev{}
	s := newStrip(dev, 2)

	if err := s.SetPixel(0, Yellow); err != nil {
		t.Fatal(err)
	}
	want := []byte{255, 255, 0, 0, 0, 0}
	if got := dev.writes[0]; !bytes.Equal(got, want) {
		t.Errorf("wrote %v, want %v", got, want)
	}
	if err := s.SetPixel(2, Red); err == nil {
		t.Error("expected out of range error")
	}
}

func TestStrip_FillAndDisable(t *testing.T) {
	dev := &fakeDev{}
	s := newStrip(dev, 1)

	if err := s.Fill(Reading, 0.5); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x80, 0x6F, 0x3C}
	if got := dev.writes[0]; !bytes.Equal(got, want) {
		t.Errorf("wrote %v, want %v", got, want)
	}

	if err := s.Disable(); err != nil {
		t.Fatal(err)
	}
	if last := dev.writes[len(dev.writes)-1]; !bytes.Equal(last, []byte{0, 0, 0}) {
		t.Errorf("Disable left pixel at %v", last)
	}
	if !dev.halted {
		t.Error("Disable did not halt the device")
	}
}

func TestScale(t *testing.T) {
	tests := []struct {
		b    float64
		want color.RGBA
	}{
		{1, color.RGBA{255, 0, 0, 0xFF}},
		{0, color.RGBA{0, 0, 0, 0xFF}},
		{2, color.RGBA{255, 0, 0, 0xFF}},
		{0.25, color.RGBA{64, 0, 0, 0xFF}},
	}
	for _, tt := range tests {
		if got := Scale(Red, tt.b); got != tt.want {
			t.Errorf("Scale(Red, %v) = %v, want %v", tt.b, got, tt.want)
		}
	}
}
