// Package od описывает контракт движка дисциплинирования осциллятора:
// вход (Input) собирается циклом управления на каждый PPS, выход (Output) — решение движка.
// Встроенная реализация — Discipliner (engine.go).
package od

import (
	"errors"
	"fmt"
	"time"
)

// NsInSecond — наносекунд в секунде
const NsInSecond = 1_000_000_000

// ErrNoCalibration — движок не может выдать параметры калибровки.
var ErrNoCalibration = errors.New("no calibration parameters")

// Action — действие, запрошенное движком.
// «Ничего не делать» выражается как AdjustFine/AdjustCoarse с текущей уставкой.
type Action int

const (
	AdjustCoarse Action = iota
	AdjustFine
	PhaseJump
	Calibrate
)

func (a Action) String() string {
	switch a {
	case AdjustCoarse:
		return "adjust_coarse"
	case AdjustFine:
		return "adjust_fine"
	case PhaseJump:
		return "phase_jump"
	case Calibrate:
		return "calibrate"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Timespec — ошибка фазы в виде секунд и наносекунд; знак Nsec совпадает со знаком Sec.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// TimespecFromNs раскладывает наносекунды на секунды и остаток (деление с усечением).
func TimespecFromNs(ns int64) Timespec {
	return Timespec{Sec: ns / NsInSecond, Nsec: ns % NsInSecond}
}

// Nanoseconds возвращает значение в наносекундах.
func (t Timespec) Nanoseconds() int64 {
	return t.Sec*NsInSecond + t.Nsec
}

// Duration возвращает значение как time.Duration.
func (t Timespec) Duration() time.Duration {
	return time.Duration(t.Nanoseconds())
}

// Input — сэмпл для движка, собирается заново на каждый цикл.
type Input struct {
	PhaseError     Timespec
	Valid          bool   // GNSS сообщает пригодный fix
	Lock           bool   // признак захвата самого осциллятора
	Temperature    uint16 // 0 — бэкенд не поддерживает температуру
	QErr           int32  // квантовая ошибка PPS от приёмника, без изменений
	FineSetpoint   uint32
	CoarseSetpoint uint32
}

// Output — решение движка.
type Output struct {
	Action         Action
	Setpoint       uint32 // для AdjustCoarse/AdjustFine
	ValuePhaseCtrl int32  // для PhaseJump, ns
}

// CalibrationParameters — программа калибровки: точки управления (fine DAC) и число замеров на точку.
type CalibrationParameters struct {
	CtrlPoints    []uint32
	NbCalibration int
	// Settling — число PPS, пропускаемых после смены уставки до начала замеров.
	Settling int
}

// CalibrationResults — замеры ошибки фазы (ns) по точкам: Measures[i][j] — j-й замер точки i.
type CalibrationResults struct {
	Measures [][]int64
}

// Engine — движок дисциплинирования. Вызывается только из цикла управления.
type Engine interface {
	Process(in Input) (Output, error)
	DACMin() uint32
	DACMax() uint32
	CalibrationParameters() (*CalibrationParameters, error)
	Calibrate(params *CalibrationParameters, results *CalibrationResults)
	Close() error
}
