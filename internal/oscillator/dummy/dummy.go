// Package dummy — осциллятор в памяти, без железа. Для тестов и отладки цикла.
package dummy

import (
	"fmt"
	"sync"

	"github.com/shiwa/timecard-mini/oscillatord/internal/config"
	"github.com/shiwa/timecard-mini/oscillatord/internal/logger"
	"github.com/shiwa/timecard-mini/oscillatord/internal/od"
	"github.com/shiwa/timecard-mini/oscillatord/internal/oscillator"
)

// Name — имя модели в конфиге
const Name = "dummy"

func init() {
	oscillator.Register(Name, func(cfg *config.Config) (oscillator.Oscillator, error) {
		fine, err := cfg.GetUint("dummy-fine", 0)
		if err != nil {
			return nil, err
		}
		coarse, err := cfg.GetUint("dummy-coarse", 0)
		if err != nil {
			return nil, err
		}
		return New(uint32(fine), uint32(coarse)), nil
	})
}

// Dummy хранит уставки в памяти. Температура не поддерживается, захват всегда есть.
type Dummy struct {
	oscillator.DACBounds

	mu      sync.Mutex
	fine    uint32
	coarse  uint32
	applied []od.Output
	closed  bool
}

// New создаёт осциллятор с начальными уставками
func New(fine, coarse uint32) *Dummy {
	return &Dummy{fine: fine, coarse: coarse}
}

func (d *Dummy) Name() string { return Name }

func (d *Dummy) GetCtrl() (oscillator.Ctrl, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return oscillator.Ctrl{Fine: d.fine, Coarse: d.coarse, Lock: true}, nil
}

func (d *Dummy) GetTemp() (uint16, error) {
	return 0, oscillator.ErrNotSupported
}

func (d *Dummy) ApplyOutput(out od.Output) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch out.Action {
	case od.AdjustFine:
		d.fine = d.Clamp(out.Setpoint)
	case od.AdjustCoarse:
		d.coarse = out.Setpoint
	default:
		return fmt.Errorf("dummy: action %s: %w", out.Action, oscillator.ErrNotSupported)
	}
	d.applied = append(d.applied, out)
	logger.Debug("dummy: %s -> fine %d coarse %d", out.Action, d.fine, d.coarse)
	return nil
}

// Applied возвращает копию применённых решений
func (d *Dummy) Applied() []od.Output {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]od.Output(nil), d.applied...)
}

func (d *Dummy) setFine(v uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fine = d.Clamp(v)
	return nil
}

func (d *Dummy) Calibrate(params *od.CalibrationParameters, ch oscillator.PhaseSource, sign int) (*od.CalibrationResults, error) {
	return oscillator.RunCalibration(d.setFine, params, ch, sign)
}

// Closed сообщает, что Close уже вызывался
func (d *Dummy) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Dummy) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
