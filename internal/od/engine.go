package od

import (
	"fmt"
	"math"
	"time"

	"github.com/shiwa/timecard-mini/oscillatord/internal/config"
	"github.com/shiwa/timecard-mini/oscillatord/internal/logger"
	"github.com/shiwa/timecard-mini/oscillatord/internal/servo"
)

// Значения по умолчанию встроенного движка
const (
	defaultDACMin             = 0
	defaultDACMax             = 0xffff
	defaultPhaseJumpThreshold = 20000 // ns
	defaultNbCalibration      = 10
	defaultSettling           = 3
	defaultTuningCoefficient  = 0.1 // ns/s на единицу fine DAC
	defaultInterval           = 6 * time.Second
)

// Settings — параметры встроенного движка (ключи libod-конфига).
type Settings struct {
	Algorithm          string
	Kp, Ki, Kd         float64
	DACMin, DACMax     uint32
	PhaseJumpThreshold int64 // ns; |ошибка| выше порога — PhaseJump
	CalibrateFirst     bool
	CtrlPoints         []uint32
	NbCalibration      int
	Settling           int
	TuningCoefficient  float64 // наклон дрейфа фазы, ns/s на единицу fine DAC
	CoarseStep         int64   // 0 — грубая подстройка отключена
}

// Discipliner — встроенный движок: servo по ошибке фазы → уставка fine DAC,
// скачок фазы при большой ошибке, калибровка наклона по запросу.
type Discipliner struct {
	settings    Settings
	algo        servo.Algorithm
	calibrated  bool
	pendingFine *uint32
	lastUpdate  time.Time
	now         func() time.Time
}

// New создаёт движок из файла конфигурации path (ключ libod-config-path).
func New(path string) (*Discipliner, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("od config: %w", err)
	}
	s, err := SettingsFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("od config %s: %w", path, err)
	}
	return NewWithSettings(s)
}

// SettingsFromConfig читает параметры движка из конфига.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	s := Settings{Algorithm: cfg.GetDefault("servo-algorithm", "pi")}
	var err error
	if s.Kp, err = cfg.GetFloat("kp", 0); err != nil {
		return s, err
	}
	if s.Ki, err = cfg.GetFloat("ki", 0); err != nil {
		return s, err
	}
	if s.Kd, err = cfg.GetFloat("kd", 0); err != nil {
		return s, err
	}
	lo, err := cfg.GetUint("dac-min", defaultDACMin)
	if err != nil {
		return s, err
	}
	hi, err := cfg.GetUint("dac-max", defaultDACMax)
	if err != nil {
		return s, err
	}
	if lo > math.MaxUint32 || hi > math.MaxUint32 || lo >= hi {
		return s, fmt.Errorf("invalid dac range [%d, %d]", lo, hi)
	}
	s.DACMin, s.DACMax = uint32(lo), uint32(hi)
	if s.PhaseJumpThreshold, err = cfg.GetInt("phase-jump-threshold-ns", defaultPhaseJumpThreshold); err != nil {
		return s, err
	}
	if s.CalibrateFirst, err = cfg.GetBool("calibrate-first", false); err != nil {
		return s, err
	}
	for _, p := range cfg.GetList("ctrl-points") {
		var v uint64
		if _, err := fmt.Sscan(p, &v); err != nil || v > math.MaxUint32 {
			return s, fmt.Errorf("ctrl-points: invalid value %q", p)
		}
		s.CtrlPoints = append(s.CtrlPoints, uint32(v))
	}
	nb, err := cfg.GetInt("nb-calibration", defaultNbCalibration)
	if err != nil {
		return s, err
	}
	s.NbCalibration = int(nb)
	settling, err := cfg.GetInt("settling-time", defaultSettling)
	if err != nil {
		return s, err
	}
	s.Settling = int(settling)
	if s.TuningCoefficient, err = cfg.GetFloat("tuning-coefficient", defaultTuningCoefficient); err != nil {
		return s, err
	}
	if s.CoarseStep, err = cfg.GetInt("coarse-step", 0); err != nil {
		return s, err
	}
	return s, nil
}

// NewWithSettings создаёт движок с готовыми параметрами.
func NewWithSettings(s Settings) (*Discipliner, error) {
	algo, err := servo.New(s.Algorithm, s.Kp, s.Ki, s.Kd)
	if err != nil {
		return nil, err
	}
	if s.TuningCoefficient == 0 {
		s.TuningCoefficient = defaultTuningCoefficient
	}
	if s.NbCalibration <= 0 {
		s.NbCalibration = defaultNbCalibration
	}
	if s.Settling < 0 {
		s.Settling = 0
	}
	if len(s.CtrlPoints) == 0 && s.DACMax > s.DACMin {
		span := s.DACMax - s.DACMin
		s.CtrlPoints = []uint32{s.DACMin + span/4, s.DACMin + span/2, s.DACMin + span/4*3}
	}
	return &Discipliner{
		settings: s,
		algo:     algo,
		now:      time.Now,
	}, nil
}

// DACMin возвращает нижнюю границу fine DAC.
func (d *Discipliner) DACMin() uint32 { return d.settings.DACMin }

// DACMax возвращает верхнюю границу fine DAC.
func (d *Discipliner) DACMax() uint32 { return d.settings.DACMax }

// TuningCoefficient возвращает текущий наклон (ns/s на единицу DAC).
func (d *Discipliner) TuningCoefficient() float64 { return d.settings.TuningCoefficient }

// Process принимает решение по сэмплу.
func (d *Discipliner) Process(in Input) (Output, error) {
	if d.settings.CalibrateFirst && !d.calibrated {
		return Output{Action: Calibrate}, nil
	}
	if d.pendingFine != nil {
		sp := *d.pendingFine
		d.pendingFine = nil
		d.algo.Reset()
		d.lastUpdate = time.Time{}
		return Output{Action: AdjustFine, Setpoint: sp}, nil
	}
	if !in.Valid {
		// holdover: держим текущую уставку
		d.lastUpdate = time.Time{}
		return Output{Action: AdjustFine, Setpoint: in.FineSetpoint}, nil
	}

	phase := in.PhaseError.Nanoseconds()
	if phase > d.settings.PhaseJumpThreshold || phase < -d.settings.PhaseJumpThreshold {
		if phase > math.MaxInt32 || phase < math.MinInt32 {
			return Output{}, fmt.Errorf("phase error %dns out of range", phase)
		}
		d.algo.Reset()
		d.lastUpdate = time.Time{}
		return Output{Action: PhaseJump, ValuePhaseCtrl: int32(phase)}, nil
	}

	now := d.now()
	dt := defaultInterval
	if !d.lastUpdate.IsZero() {
		dt = now.Sub(d.lastUpdate)
	}
	d.lastUpdate = now

	corr := d.algo.Update(float64(phase), dt)
	target := float64(in.FineSetpoint) - corr/d.settings.TuningCoefficient
	lo, hi := float64(d.settings.DACMin), float64(d.settings.DACMax)
	switch {
	case target >= hi && d.settings.CoarseStep != 0:
		d.algo.Reset()
		return Output{Action: AdjustCoarse, Setpoint: stepCoarse(in.CoarseSetpoint, d.settings.CoarseStep)}, nil
	case target <= lo && d.settings.CoarseStep != 0:
		d.algo.Reset()
		return Output{Action: AdjustCoarse, Setpoint: stepCoarse(in.CoarseSetpoint, -d.settings.CoarseStep)}, nil
	}
	target = math.Max(lo, math.Min(hi, math.Round(target)))
	return Output{Action: AdjustFine, Setpoint: uint32(target)}, nil
}

func stepCoarse(coarse uint32, step int64) uint32 {
	v := int64(coarse) + step
	if v < 0 {
		return 0
	}
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}

// CalibrationParameters возвращает программу калибровки (копию).
func (d *Discipliner) CalibrationParameters() (*CalibrationParameters, error) {
	if len(d.settings.CtrlPoints) == 0 {
		return nil, ErrNoCalibration
	}
	return &CalibrationParameters{
		CtrlPoints:    append([]uint32(nil), d.settings.CtrlPoints...),
		NbCalibration: d.settings.NbCalibration,
		Settling:      d.settings.Settling,
	}, nil
}

// Calibrate обновляет наклон по результатам калибровки:
// дрейф каждой точки — наклон замеров во времени (1 замер на PPS),
// затем регрессия дрейфа по уставкам. Следующий Process выставит уставку нулевого дрейфа.
func (d *Discipliner) Calibrate(params *CalibrationParameters, results *CalibrationResults) {
	d.calibrated = true
	if params == nil || results == nil || len(results.Measures) != len(params.CtrlPoints) {
		logger.Warn("od: calibration results do not match parameters, keeping tuning coefficient %g",
			d.settings.TuningCoefficient)
		return
	}
	var xs, ys []float64
	for i, m := range results.Measures {
		if len(m) < 2 {
			continue
		}
		t := make([]float64, len(m))
		v := make([]float64, len(m))
		for j, ns := range m {
			t[j] = float64(j)
			v[j] = float64(ns)
		}
		xs = append(xs, float64(params.CtrlPoints[i]))
		ys = append(ys, servo.Slope(t, v))
	}
	intercept, slope := servo.Fit(xs, ys)
	if slope == 0 {
		logger.Warn("od: calibration gave no usable slope, keeping tuning coefficient %g",
			d.settings.TuningCoefficient)
		return
	}
	d.settings.TuningCoefficient = slope
	zero := math.Round(-intercept / slope)
	zero = math.Max(float64(d.settings.DACMin), math.Min(float64(d.settings.DACMax), zero))
	sp := uint32(zero)
	d.pendingFine = &sp
	logger.Info("od: calibration done, tuning coefficient %g ns/s per LSB, zero drift at %d", slope, sp)
}

// Close освобождает движок.
func (d *Discipliner) Close() error {
	return nil
}
