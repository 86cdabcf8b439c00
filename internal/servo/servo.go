package servo

import (
	"fmt"
	"time"
)

// Algorithm — интерфейс регулятора фазы (PID, PI, LinReg).
// Update получает ошибку фазы в наносекундах и возвращает коррекцию частоты в ns/s (ppb).
type Algorithm interface {
	Update(errorNs float64, dt time.Duration) (freqAdjustment float64)
	Reset()
}

// DefaultMaxAdjustment — ограничение выхода регулятора, ppb (1 ppm).
const DefaultMaxAdjustment = 1000.0

// New создаёт регулятор по имени из конфига: "pi", "pid" (по умолчанию), "linreg".
func New(name string, kp, ki, kd float64) (Algorithm, error) {
	switch name {
	case "pi":
		return NewPI(kp, ki), nil
	case "pid", "":
		return NewPID(kp, ki, kd), nil
	case "linreg":
		return NewLinReg(), nil
	default:
		return nil, fmt.Errorf("unknown servo algorithm %q", name)
	}
}

// PID — PID регулятор с ограничением интеграла и выхода.
type PID struct {
	Kp, Ki, Kd    float64
	Integral      float64
	LastError     float64
	MaxIntegral   float64
	MaxAdjustment float64
	primed        bool
}

// NewPID создаёт PID с разумными коэффициентами по умолчанию
func NewPID(kp, ki, kd float64) *PID {
	if kp == 0 && ki == 0 && kd == 0 {
		kp, ki, kd = 0.1, 0.01, 0.001
	}
	return &PID{
		Kp:            kp,
		Ki:            ki,
		Kd:            kd,
		MaxIntegral:   1e6,
		MaxAdjustment: DefaultMaxAdjustment,
	}
}

// Update возвращает коррекцию частоты (ns/s)
func (p *PID) Update(errorNs float64, dt time.Duration) float64 {
	dtSec := dt.Seconds()
	if dtSec <= 0 {
		return 0
	}
	p.Integral = clamp(p.Integral+errorNs*dtSec, p.MaxIntegral)
	var derivative float64
	if p.primed {
		derivative = (errorNs - p.LastError) / dtSec
	}
	p.LastError = errorNs
	p.primed = true
	return clamp(p.Kp*errorNs+p.Ki*p.Integral+p.Kd*derivative, p.MaxAdjustment)
}

// Reset сбрасывает интеграл и последнюю ошибку
func (p *PID) Reset() {
	p.Integral = 0
	p.LastError = 0
	p.primed = false
}

// PI — PI регулятор (без D)
type PI struct {
	Kp, Ki        float64
	Integral      float64
	MaxIntegral   float64
	MaxAdjustment float64
}

// NewPI создаёт PI регулятор
func NewPI(kp, ki float64) *PI {
	if kp == 0 && ki == 0 {
		kp, ki = 0.1, 0.01
	}
	return &PI{
		Kp:            kp,
		Ki:            ki,
		MaxIntegral:   1e6,
		MaxAdjustment: DefaultMaxAdjustment,
	}
}

// Update возвращает коррекцию частоты (ns/s)
func (pi *PI) Update(errorNs float64, dt time.Duration) float64 {
	dtSec := dt.Seconds()
	if dtSec <= 0 {
		return 0
	}
	pi.Integral = clamp(pi.Integral+errorNs*dtSec, pi.MaxIntegral)
	return clamp(pi.Kp*errorNs+pi.Ki*pi.Integral, pi.MaxAdjustment)
}

// Reset сбрасывает интеграл
func (pi *PI) Reset() {
	pi.Integral = 0
}

func clamp(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
