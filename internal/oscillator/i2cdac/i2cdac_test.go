package i2cdac

import (
	"bytes"
	"errors"
	"testing"

	"github.com/shiwa/timecard-mini/oscillatord/internal/od"
	"github.com/shiwa/timecard-mini/oscillatord/internal/oscillator"
)

// fakeConn отвечает фиксированным чтением и запоминает записи
type fakeConn struct {
	read   []byte
	writes [][]byte
	err    error
}

func (f *fakeConn) Tx(w, r []byte) error {
	if f.err != nil {
		return f.err
	}
	if w != nil {
		f.writes = append(f.writes, append([]byte(nil), w...))
	}
	copy(r, f.read)
	return nil
}

type closeCounter struct{ n int }

func (c *closeCounter) Close() error { c.n++; return nil }

func TestNewReadsSetpoint(t *testing.T) {
	d, err := New(&fakeConn{read: []byte{0x12, 0x34}}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	c, _ := d.GetCtrl()
	if c.Fine != 0x1234 || c.Coarse != 0 || !c.Lock {
		t.Errorf("ctrl %+v", c)
	}
	if _, err := d.GetTemp(); !errors.Is(err, oscillator.ErrNotSupported) {
		t.Errorf("GetTemp без датчика: %v", err)
	}
}

func TestNewError(t *testing.T) {
	if _, err := New(&fakeConn{err: errors.New("nack")}, nil, nil); err == nil {
		t.Error("expected error when DAC does not answer")
	}
}

func TestApplyOutput(t *testing.T) {
	dac := &fakeConn{read: []byte{0, 0}}
	d, err := New(dac, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	d.SetDACMin(0x100)
	d.SetDACMax(0xff00)

	tests := []struct {
		setpoint uint32
		want     []byte
		fine     uint32
	}{
		{0xabcd, []byte{cmdWriteUpdate, 0xab, 0xcd}, 0xabcd},
		{0x10, []byte{cmdWriteUpdate, 0x01, 0x00}, 0x100},
		{0x1ffff, []byte{cmdWriteUpdate, 0xff, 0x00}, 0xff00},
	}
	for _, tt := range tests {
		if err := d.ApplyOutput(od.Output{Action: od.AdjustFine, Setpoint: tt.setpoint}); err != nil {
			t.Fatal(err)
		}
		if last := dac.writes[len(dac.writes)-1]; !bytes.Equal(last, tt.want) {
			t.Errorf("setpoint %#x: wrote % x, want % x", tt.setpoint, last, tt.want)
		}
		if c, _ := d.GetCtrl(); c.Fine != tt.fine {
			t.Errorf("fine = %#x, want %#x", c.Fine, tt.fine)
		}
	}
	if err := d.ApplyOutput(od.Output{Action: od.AdjustCoarse, Setpoint: 1}); !errors.Is(err, oscillator.ErrNotSupported) {
		t.Errorf("coarse: %v", err)
	}
}

func TestTemperature(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want uint16
	}{
		{"25C", []byte{0x19, 0x00}, 25},
		{"50.5C", []byte{0x32, 0x80}, 50},
		{"negative", []byte{0xff, 0x00}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			temp := &fakeConn{read: tt.raw}
			d, err := New(&fakeConn{read: []byte{0, 0}}, temp, nil)
			if err != nil {
				t.Fatal(err)
			}
			got, err := d.GetTemp()
			if err != nil || got != tt.want {
				t.Errorf("GetTemp = %d, %v, want %d", got, err, tt.want)
			}
			if !bytes.Equal(temp.writes[0], []byte{regTemperature}) {
				t.Errorf("register pointer % x", temp.writes[0])
			}
		})
	}
}

func TestCloseOnce(t *testing.T) {
	cc := &closeCounter{}
	d, err := New(&fakeConn{read: []byte{0, 0}}, nil, cc)
	if err != nil {
		t.Fatal(err)
	}
	d.Close()
	d.Close()
	if cc.n != 1 {
		t.Errorf("closed %d times", cc.n)
	}
}
