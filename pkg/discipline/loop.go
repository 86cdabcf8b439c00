// Package discipline — цикл дисциплинирования осциллятора по PPS:
// ожидание импульса, сбор входа для движка, применение его решения.
package discipline

import (
	"errors"
	"fmt"
	"time"

	"github.com/shiwa/timecard-mini/oscillatord/internal/gnss"
	"github.com/shiwa/timecard-mini/oscillatord/internal/logger"
	"github.com/shiwa/timecard-mini/oscillatord/internal/od"
	"github.com/shiwa/timecard-mini/oscillatord/internal/oscillator"
	"github.com/shiwa/timecard-mini/oscillatord/internal/pps"
)

const (
	// WaitTimeout больше 2 с окна сторожевого таймера PPS: таймаут означает отказ железа.
	WaitTimeout = 4 * time.Second
	// CycleDelay — пауза в конце каждого цикла
	CycleDelay = 5 * time.Second
)

var errStopped = errors.New("stop requested")

// Channel — PPS устройство: ожидание, чтение ошибки фазы, запись скачка фазы.
type Channel interface {
	oscillator.PhaseSource
	ApplyPhaseOffset(offset int32) error
}

// GNSS — неблокирующий опрос приёмника
type GNSS interface {
	Data() (gnss.State, gnss.Fix)
	Err() error
}

// Loop — цикл управления. Однопоточный: все вызовы Channel, Oscillator и Engine идут из Run.
type Loop struct {
	Channel    Channel
	Oscillator oscillator.Oscillator
	Engine     od.Engine
	GNSS       GNSS
	// Sign — +1 или -1, знак, применяемый к измеренной ошибке фазы
	Sign int
	// Turns — 0 без ограничения; иначе цикл завершается, когда счётчик доходит до 1
	Turns int64
	Stop  *Shutdown

	// Нулевые значения заменяются на WaitTimeout и CycleDelay
	WaitTimeout time.Duration
	CycleDelay  time.Duration

	suppress bool
	cycles   int
}

// Cycles возвращает число завершённых циклов
func (l *Loop) Cycles() int { return l.cycles }

// Run крутит цикл до исчерпания Turns или запроса остановки (тогда nil).
// Любая другая ошибка фатальна и возвращается обёрнутой.
func (l *Loop) Run() error {
	if l.Stop == nil {
		l.Stop = NewShutdown()
	}
	if l.Sign == 0 {
		l.Sign = 1
	}
	for {
		if err := l.waitSample(); err != nil {
			if errors.Is(err, errStopped) {
				return nil
			}
			return err
		}

		logger.Debug("reading phase error")
		phase, err := l.Channel.ReadPhaseError()
		if err != nil {
			if pps.IsTransient(err) {
				logger.Debug("read: %v, restarting cycle", err)
				continue
			}
			return fmt.Errorf("read phase error: %w", err)
		}

		if err := l.handle(phase); err != nil {
			return err
		}
		l.cycles++
		if l.endCycle() {
			return nil
		}
	}
}

// waitSample ждёт PPS. EINTR без запроса остановки повторяет ожидание, не расходуя цикл.
func (l *Loop) waitSample() error {
	timeout := l.WaitTimeout
	if timeout <= 0 {
		timeout = WaitTimeout
	}
	for {
		err := l.Channel.Wait(timeout)
		switch {
		case err == nil:
			return nil
		case pps.IsInterrupted(err):
			if l.Stop.Requested() {
				return errStopped
			}
			continue
		case errors.Is(err, pps.ErrTimeout):
			return fmt.Errorf("no pps within %v, shouldn't happen: %w", timeout, err)
		}
		return fmt.Errorf("wait for pps: %w", err)
	}
}

func (l *Loop) handle(phase int32) error {
	if l.suppress {
		l.suppress = false
		logger.Info("ignoring 1 input due to phase jump")
		return nil
	}

	temperature, err := l.Oscillator.GetTemp()
	if errors.Is(err, oscillator.ErrNotSupported) {
		temperature = 0
	} else if err != nil {
		return fmt.Errorf("oscillator temperature: %w", err)
	}

	state, fix := l.GNSS.Data()
	valid, err := state.Valid()
	if err != nil {
		if cause := l.GNSS.Err(); cause != nil {
			return fmt.Errorf("polling receiver data: %w: %w", err, cause)
		}
		return fmt.Errorf("polling receiver data: %w", err)
	}

	ctrl, err := l.Oscillator.GetCtrl()
	if err != nil {
		return fmt.Errorf("oscillator controls: %w", err)
	}

	logger.Debug("phase error is %d and sign is %d", phase, l.Sign)
	in := od.Input{
		PhaseError:     od.TimespecFromNs(int64(l.Sign) * int64(phase)),
		Valid:          valid,
		Lock:           ctrl.Lock,
		Temperature:    temperature,
		QErr:           fix.QErr,
		FineSetpoint:   ctrl.Fine,
		CoarseSetpoint: ctrl.Coarse,
	}
	logger.Info("input: phase_error = (%ds, %09dns), valid = %v, lock = %v, qErr = %d, fine = %d, coarse = %d",
		in.PhaseError.Sec, in.PhaseError.Nsec, in.Valid, in.Lock, in.QErr, in.FineSetpoint, in.CoarseSetpoint)

	out, err := l.Engine.Process(in)
	if err != nil {
		return fmt.Errorf("od process: %w", err)
	}
	logger.Debug("output: setpoint = %d, action = %s, value_phase_ctrl = %dns", out.Setpoint, out.Action, out.ValuePhaseCtrl)
	return l.dispatch(out)
}

func (l *Loop) dispatch(out od.Output) error {
	switch out.Action {
	case od.PhaseJump:
		offset := -out.ValuePhaseCtrl
		logger.Info("phase jump requested, applying %d ns", offset)
		if err := l.Channel.ApplyPhaseOffset(offset); err != nil {
			return fmt.Errorf("apply phase offset: %w", err)
		}
		l.suppress = true
		return nil
	case od.Calibrate:
		logger.Info("calibration requested")
		params, err := l.Engine.CalibrationParameters()
		if err != nil {
			return fmt.Errorf("od calibration parameters: %w", err)
		}
		results, err := l.Oscillator.Calibrate(params, l.Channel, l.Sign)
		if err != nil {
			return fmt.Errorf("oscillator calibrate: %w", err)
		}
		l.Engine.Calibrate(params, results)
		return nil
	case od.AdjustCoarse:
		logger.Info("coarse adjustment to value %d requested", out.Setpoint)
	case od.AdjustFine:
		logger.Info("fine adjustment to value %d requested", out.Setpoint)
	}
	if err := l.Oscillator.ApplyOutput(out); err != nil {
		return fmt.Errorf("oscillator apply output: %w", err)
	}
	return nil
}

// endCycle выдерживает паузу и уменьшает счётчик. true — пора выходить.
func (l *Loop) endCycle() bool {
	delay := l.CycleDelay
	if delay <= 0 {
		delay = CycleDelay
	}
	stopped := l.Stop.Sleep(delay)
	if l.Turns > 0 {
		l.Turns--
		if l.Turns == 1 {
			return true
		}
	}
	return stopped
}
