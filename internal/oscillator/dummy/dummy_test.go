package dummy

import (
	"errors"
	"testing"
	"time"

	"github.com/shiwa/timecard-mini/oscillatord/internal/config"
	"github.com/shiwa/timecard-mini/oscillatord/internal/od"
	"github.com/shiwa/timecard-mini/oscillatord/internal/oscillator"
)

func TestFactory(t *testing.T) {
	o, err := oscillator.New(config.FromMap("test", map[string]string{
		"oscillator":   "dummy",
		"dummy-fine":   "1000",
		"dummy-coarse": "7",
	}))
	if err != nil {
		t.Fatal(err)
	}
	defer o.Close()
	if o.Name() != Name {
		t.Errorf("Name() = %q", o.Name())
	}
	c1, _ := o.GetCtrl()
	c2, _ := o.GetCtrl()
	if c1 != c2 {
		t.Errorf("consecutive GetCtrl differ: %+v %+v", c1, c2)
	}
	if c1.Fine != 1000 || c1.Coarse != 7 || !c1.Lock {
		t.Errorf("unexpected ctrl %+v", c1)
	}
}

func TestApplyOutput(t *testing.T) {
	d := New(0, 0)
	d.SetDACMin(100)
	d.SetDACMax(200)

	tests := []struct {
		name       string
		out        od.Output
		wantFine   uint32
		wantCoarse uint32
		wantErr    bool
	}{
		{"fine in range", od.Output{Action: od.AdjustFine, Setpoint: 150}, 150, 0, false},
		{"fine above max", od.Output{Action: od.AdjustFine, Setpoint: 500}, 200, 0, false},
		{"fine below min", od.Output{Action: od.AdjustFine, Setpoint: 5}, 100, 0, false},
		{"coarse", od.Output{Action: od.AdjustCoarse, Setpoint: 42}, 100, 42, false},
		{"phase jump", od.Output{Action: od.PhaseJump, ValuePhaseCtrl: 10}, 100, 42, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.ApplyOutput(tt.out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyOutput err = %v", err)
			}
			if err != nil && !errors.Is(err, oscillator.ErrNotSupported) {
				t.Errorf("ожидали ErrNotSupported, получили %v", err)
			}
			c, _ := d.GetCtrl()
			if c.Fine != tt.wantFine || c.Coarse != tt.wantCoarse {
				t.Errorf("ctrl %+v, want fine %d coarse %d", c, tt.wantFine, tt.wantCoarse)
			}
		})
	}
	if n := len(d.Applied()); n != 4 {
		t.Errorf("applied %d outputs, want 4", n)
	}
}

func TestTemperatureUnsupported(t *testing.T) {
	if _, err := New(0, 0).GetTemp(); !errors.Is(err, oscillator.ErrNotSupported) {
		t.Errorf("GetTemp err = %v", err)
	}
}

type phaseSeq struct {
	values []int32
	i      int
}

func (p *phaseSeq) Wait(_ time.Duration) error { return nil }

func (p *phaseSeq) ReadPhaseError() (int32, error) {
	v := p.values[p.i%len(p.values)]
	p.i++
	return v, nil
}

func TestCalibrate(t *testing.T) {
	d := New(0, 0)
	params := &od.CalibrationParameters{CtrlPoints: []uint32{10, 20}, NbCalibration: 2, Settling: 1}
	ch := &phaseSeq{values: []int32{1, 2, 3}}
	res, err := d.Calibrate(params, ch, -1)
	if err != nil {
		t.Fatal(err)
	}
	// settle 1, замер 2, 3; settle 1, замер 2, 3
	want := [][]int64{{-2, -3}, {-2, -3}}
	for i := range want {
		for j := range want[i] {
			if res.Measures[i][j] != want[i][j] {
				t.Fatalf("measures %v, want %v", res.Measures, want)
			}
		}
	}
	if c, _ := d.GetCtrl(); c.Fine != 20 {
		t.Errorf("fine after calibration = %d, want last point 20", c.Fine)
	}
}
