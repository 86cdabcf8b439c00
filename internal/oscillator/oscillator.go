// Package oscillator — общий интерфейс управляемых осцилляторов и реестр моделей.
package oscillator

import (
	"errors"
	"sync"
	"time"

	"github.com/shiwa/timecard-mini/oscillatord/internal/logger"
	"github.com/shiwa/timecard-mini/oscillatord/internal/od"
)

var (
	// ErrNotSupported — модель не умеет эту операцию (например, температуру)
	ErrNotSupported = errors.New("operation not supported by oscillator")
	// ErrUnknownModel — в реестре нет модели с таким именем
	ErrUnknownModel = errors.New("unknown oscillator model")
)

// Ctrl — текущие уставки осциллятора
type Ctrl struct {
	Fine   uint32
	Coarse uint32
	Lock   bool
}

// PhaseSource — канал PPS, из которого калибровка читает ошибку фазы.
type PhaseSource interface {
	Wait(timeout time.Duration) error
	ReadPhaseError() (int32, error)
}

// Oscillator — управляемый генератор опорной частоты.
type Oscillator interface {
	Name() string
	GetCtrl() (Ctrl, error)
	SetDACMin(v uint32)
	SetDACMax(v uint32)
	// GetTemp возвращает ErrNotSupported, если датчика нет.
	GetTemp() (uint16, error)
	ApplyOutput(out od.Output) error
	Calibrate(params *od.CalibrationParameters, ch PhaseSource, sign int) (*od.CalibrationResults, error)
	Close() error
}

// DACBounds хранит допустимый диапазон fine уставки. Встраивается в бэкенды.
type DACBounds struct {
	mu  sync.Mutex
	min uint32
	max uint32
	set bool
}

// SetDACMin задаёт нижнюю границу
func (b *DACBounds) SetDACMin(v uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.set {
		b.max = ^uint32(0)
		b.set = true
	}
	b.min = v
}

// SetDACMax задаёт верхнюю границу
func (b *DACBounds) SetDACMax(v uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.set = true
	b.max = v
}

// Bounds возвращает текущий диапазон; без настройки — весь uint32.
func (b *DACBounds) Bounds() (lo, hi uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.set {
		return 0, ^uint32(0)
	}
	return b.min, b.max
}

// Clamp ограничивает уставку диапазоном и пишет предупреждение при выходе за него.
func (b *DACBounds) Clamp(v uint32) uint32 {
	lo, hi := b.Bounds()
	c := ClampSetpoint(v, lo, hi)
	if c != v {
		logger.Warn("setpoint %d out of DAC range [%d, %d], using %d", v, lo, hi, c)
	}
	return c
}

// ClampSetpoint ограничивает v отрезком [lo, hi].
func ClampSetpoint(v, lo, hi uint32) uint32 {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
