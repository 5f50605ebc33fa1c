package battery

import (
	"context"
	"testing"

	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

func TestI2CReader_Read(t *testing.T) {
	bus := i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: DefaultAddr, W: []byte{regVoltageHigh}, R: []byte{0x0D}},
			{Addr: DefaultAddr, W: []byte{regVoltageLow}, R: []byte{0x48}},
			{Addr: DefaultAddr, W: []byte{regPercent}, R: []byte{0x7F}},
		},
	}
	r := NewI2CReader(&bus, DefaultAddr)

	st, err := r.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.VoltageMv != 3400 {
		t.Errorf("VoltageMv = %d, want 3400", st.VoltageMv)
	}
	if st.Percent != 100 {
		t.Errorf("Percent = %d, want clamped 100", st.Percent)
	}
	if got := st.Voltage(); got != 3400*physic.MilliVolt {
		t.Errorf("Voltage() = %s", got)
	}
	if err := bus.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestI2CReader_ReadError(t *testing.T) {
	bus := &i2ctest.Playback{DontPanic: true}
	if _, err := NewI2CReader(bus, DefaultAddr).Read(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestStatus_Low(t *testing.T) {
	tests := []struct {
		mv   int
		want bool
	}{
		{0, false},
		{3400, true},
		{3499, true},
		{3500, false},
		{4100, false},
	}
	for _, tt := range tests {
		if got := (Status{VoltageMv: tt.mv}).Low(3.5); got != tt.want {
			t.Errorf("Status{%d mV}.Low(3.5) = %v, want %v", tt.mv, got, tt.want)
		}
	}
}
