package servo

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// LinRegWindow — размер окна линейной регрессии
const LinRegWindow = 64

// LinReg — оценка дрейфа фазы линейной регрессией по окну ошибок.
// x = время в секундах (накопленное), y = ошибка фазы в ns; slope (ns/s) — коррекция частоты.
type LinReg struct {
	xs      []float64
	ys      []float64
	timeSec float64
	// MaxAdjustment ограничивает выход, ppb
	MaxAdjustment float64
}

// NewLinReg создаёт LinReg servo.
func NewLinReg() *LinReg {
	return &LinReg{
		xs:            make([]float64, 0, LinRegWindow),
		ys:            make([]float64, 0, LinRegWindow),
		MaxAdjustment: DefaultMaxAdjustment,
	}
}

// Update добавляет сэмпл в окно и возвращает наклон регрессии (ns/s).
// Пока в окне меньше 4 сэмплов — 0.
func (l *LinReg) Update(errorNs float64, dt time.Duration) float64 {
	dtSec := dt.Seconds()
	if dtSec <= 0 {
		dtSec = 1.0
	}
	if len(l.xs) == LinRegWindow {
		l.xs = append(l.xs[:0], l.xs[1:]...)
		l.ys = append(l.ys[:0], l.ys[1:]...)
	}
	l.xs = append(l.xs, l.timeSec)
	l.ys = append(l.ys, errorNs)
	l.timeSec += dtSec
	if len(l.xs) < 4 {
		return 0
	}
	return clamp(Slope(l.xs, l.ys), l.MaxAdjustment)
}

// Reset сбрасывает окно и накопленное время
func (l *LinReg) Reset() {
	l.xs = l.xs[:0]
	l.ys = l.ys[:0]
	l.timeSec = 0
}

// Slope возвращает наклон прямой МНК y = a + b*x; для вырожденных данных — 0.
func Slope(xs, ys []float64) float64 {
	_, b := Fit(xs, ys)
	return b
}

// Fit возвращает (intercept, slope) МНК; для вырожденных данных — (0, 0).
func Fit(xs, ys []float64) (alpha, beta float64) {
	if len(xs) < 2 || len(xs) != len(ys) {
		return 0, 0
	}
	alpha, beta = stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(alpha) || math.IsNaN(beta) || math.IsInf(beta, 0) {
		return 0, 0
	}
	return alpha, beta
}
