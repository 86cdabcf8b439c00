// Package mro50 — атомный осциллятор mRO-50 через символьное устройство драйвера ptp_ocp.
package mro50

import (
	"fmt"
	"sync"

	"github.com/shiwa/timecard-mini/oscillatord/internal/config"
	"github.com/shiwa/timecard-mini/oscillatord/internal/logger"
	"github.com/shiwa/timecard-mini/oscillatord/internal/od"
	"github.com/shiwa/timecard-mini/oscillatord/internal/oscillator"
)

const (
	// Name — имя модели в конфиге
	Name = "mRO50"
	// DefaultDevice — устройство по умолчанию
	DefaultDevice = "/dev/mRO50.0"
)

// Регистры, которыми оперирует драйвер
type register int

const (
	regFine register = iota
	regCoarse
	regTemp
)

func (r register) String() string {
	switch r {
	case regFine:
		return "fine"
	case regCoarse:
		return "coarse"
	case regTemp:
		return "temperature"
	}
	return fmt.Sprintf("register(%d)", int(r))
}

// device — доступ к регистрам mRO-50 (ioctl на Linux, фейк в тестах)
type device interface {
	read(r register) (uint32, error)
	write(r register, v uint32) error
	Close() error
}

func init() {
	oscillator.Register(Name, func(cfg *config.Config) (oscillator.Oscillator, error) {
		path := cfg.GetDefault("mro50-device", DefaultDevice)
		dev, err := openDevice(path)
		if err != nil {
			return nil, err
		}
		logger.Info("mRO50: using %s", path)
		return newMRO50(dev), nil
	})
}

// MRO50 — бэкенд mRO-50. Температура в сырых единицах датчика.
type MRO50 struct {
	oscillator.DACBounds

	mu  sync.Mutex
	dev device
}

func newMRO50(dev device) *MRO50 {
	return &MRO50{dev: dev}
}

func (m *MRO50) Name() string { return Name }

// GetCtrl читает fine и coarse. Драйвер не сообщает захват, Lock всегда true.
func (m *MRO50) GetCtrl() (oscillator.Ctrl, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fine, err := m.dev.read(regFine)
	if err != nil {
		return oscillator.Ctrl{}, fmt.Errorf("mRO50: read fine: %w", err)
	}
	coarse, err := m.dev.read(regCoarse)
	if err != nil {
		return oscillator.Ctrl{}, fmt.Errorf("mRO50: read coarse: %w", err)
	}
	return oscillator.Ctrl{Fine: fine, Coarse: coarse, Lock: true}, nil
}

func (m *MRO50) GetTemp() (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, err := m.dev.read(regTemp)
	if err != nil {
		return 0, fmt.Errorf("mRO50: read temperature: %w", err)
	}
	if raw > 0xffff {
		raw = 0xffff
	}
	return uint16(raw), nil
}

func (m *MRO50) ApplyOutput(out od.Output) error {
	switch out.Action {
	case od.AdjustFine:
		return m.set(regFine, m.Clamp(out.Setpoint))
	case od.AdjustCoarse:
		return m.set(regCoarse, out.Setpoint)
	}
	return fmt.Errorf("mRO50: action %s: %w", out.Action, oscillator.ErrNotSupported)
}

func (m *MRO50) set(r register, v uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.dev.write(r, v); err != nil {
		return fmt.Errorf("mRO50: adjust %s to %d: %w", r, v, err)
	}
	logger.Debug("mRO50: %s <- %d", r, v)
	return nil
}

func (m *MRO50) Calibrate(params *od.CalibrationParameters, ch oscillator.PhaseSource, sign int) (*od.CalibrationResults, error) {
	return oscillator.RunCalibration(func(v uint32) error {
		return m.set(regFine, m.Clamp(v))
	}, params, ch, sign)
}

func (m *MRO50) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dev == nil {
		return nil
	}
	err := m.dev.Close()
	m.dev = nil
	return err
}
