package oscillator

import (
	"errors"
	"fmt"
	"time"

	"github.com/shiwa/timecard-mini/oscillatord/internal/logger"
	"github.com/shiwa/timecard-mini/oscillatord/internal/od"
	"github.com/shiwa/timecard-mini/oscillatord/internal/pps"
)

// CalibrationWaitTimeout — ожидание одного PPS во время калибровки
const CalibrationWaitTimeout = 4 * time.Second

// RunCalibration проходит точки params.CtrlPoints: ставит fine уставку через setFine,
// пропускает params.Settling импульсов и снимает params.NbCalibration замеров фазы.
// Замеры умножаются на sign так же, как во входе движка.
func RunCalibration(setFine func(uint32) error, params *od.CalibrationParameters, ch PhaseSource, sign int) (*od.CalibrationResults, error) {
	if params == nil || len(params.CtrlPoints) == 0 {
		return nil, errors.New("calibration: no control points")
	}
	if params.NbCalibration <= 0 {
		return nil, fmt.Errorf("calibration: bad sample count %d", params.NbCalibration)
	}
	res := &od.CalibrationResults{Measures: make([][]int64, len(params.CtrlPoints))}
	for i, point := range params.CtrlPoints {
		logger.Info("calibration: control point %d/%d, setpoint %d", i+1, len(params.CtrlPoints), point)
		if err := setFine(point); err != nil {
			return nil, fmt.Errorf("calibration: set %d: %w", point, err)
		}
		for n := 0; n < params.Settling; n++ {
			if _, err := readSample(ch); err != nil {
				return nil, err
			}
		}
		measures := make([]int64, 0, params.NbCalibration)
		for n := 0; n < params.NbCalibration; n++ {
			phase, err := readSample(ch)
			if err != nil {
				return nil, err
			}
			measures = append(measures, int64(sign)*int64(phase))
		}
		logger.Debug("calibration: setpoint %d measures %v", point, measures)
		res.Measures[i] = measures
	}
	return res, nil
}

// readSample ждёт PPS и читает фазу; EINTR/EAGAIN повторяются.
func readSample(ch PhaseSource) (int32, error) {
	for {
		if err := ch.Wait(CalibrationWaitTimeout); err != nil {
			if pps.IsTransient(err) {
				continue
			}
			return 0, fmt.Errorf("calibration: wait: %w", err)
		}
		phase, err := ch.ReadPhaseError()
		if err != nil {
			if pps.IsTransient(err) {
				continue
			}
			return 0, fmt.Errorf("calibration: read: %w", err)
		}
		return phase, nil
	}
}
