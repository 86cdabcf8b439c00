// Package i2cdac — OCXO, подстраиваемый 16-битным ЦАП по I2C, с необязательным датчиком
// температуры TMP102-совместимого типа на той же шине.
package i2cdac

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/driver/driverreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"

	"github.com/shiwa/timecard-mini/oscillatord/internal/config"
	"github.com/shiwa/timecard-mini/oscillatord/internal/logger"
	"github.com/shiwa/timecard-mini/oscillatord/internal/od"
	"github.com/shiwa/timecard-mini/oscillatord/internal/oscillator"
)

const (
	// Name — имя модели в конфиге
	Name = "i2c-dac"

	DefaultBus  = "/dev/i2c-1"
	DefaultAddr = 0x0c

	// команда ЦАП: запись входного регистра и обновление выхода
	cmdWriteUpdate = 0x30
	// регистр температуры TMP102
	regTemperature = 0x00

	dacMax = 0xffff

	waitAfterTx = time.Millisecond
)

// conn — одна транзакция на шине (i2c.Dev в работе, фейк в тестах)
type conn interface {
	Tx(w, r []byte) error
}

func init() {
	oscillator.Register(Name, open)
}

func open(cfg *config.Config) (oscillator.Oscillator, error) {
	busName := cfg.GetDefault("i2c-bus", DefaultBus)
	addr, err := cfg.GetUint("i2c-addr", DefaultAddr)
	if err != nil {
		return nil, err
	}
	tempAddr, err := cfg.GetUint("i2c-dac-temperature-addr", 0)
	if err != nil {
		return nil, err
	}
	if _, err := driverreg.Init(); err != nil {
		logger.Warn("i2c-dac: periph driver init: %v", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("i2creg.Open %s: %w", busName, err)
	}
	var temp conn
	if tempAddr != 0 {
		temp = &i2c.Dev{Addr: uint16(tempAddr), Bus: bus}
	}
	d, err := New(&i2c.Dev{Addr: uint16(addr), Bus: bus}, temp, bus)
	if err != nil {
		bus.Close()
		return nil, err
	}
	logger.Info("i2c-dac: bus %s, dac 0x%02x, temperature sensor 0x%02x", busName, addr, tempAddr)
	return d, nil
}

// DAC — бэкенд на I2C ЦАП. Текущая уставка читается один раз при открытии и далее кэшируется.
type DAC struct {
	oscillator.DACBounds

	mu     sync.Mutex
	dac    conn
	temp   conn // nil — датчика нет
	closer interface{ Close() error }
	fine   uint32
}

// New создаёт бэкенд и считывает текущее значение ЦАП. temp и closer могут быть nil.
func New(dac, temp conn, closer interface{ Close() error }) (*DAC, error) {
	d := &DAC{dac: dac, temp: temp, closer: closer}
	d.SetDACMin(0)
	d.SetDACMax(dacMax)
	r := make([]byte, 2)
	if err := d.tx(d.dac, nil, r); err != nil {
		return nil, fmt.Errorf("i2c-dac: read setpoint: %w", err)
	}
	d.fine = uint32(r[0])<<8 | uint32(r[1])
	return d, nil
}

func (d *DAC) tx(c conn, w, r []byte) error {
	err := c.Tx(w, r)
	time.Sleep(waitAfterTx)
	return err
}

func (d *DAC) Name() string { return Name }

// GetCtrl возвращает кэш уставки; coarse у ЦАП нет, захват OCXO не сообщает.
func (d *DAC) GetCtrl() (oscillator.Ctrl, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return oscillator.Ctrl{Fine: d.fine, Lock: true}, nil
}

// GetTemp читает TMP102: 12 бит, 0.0625 °C на единицу. Отрицательные → 0.
func (d *DAC) GetTemp() (uint16, error) {
	if d.temp == nil {
		return 0, oscillator.ErrNotSupported
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	r := make([]byte, 2)
	if err := d.tx(d.temp, []byte{regTemperature}, r); err != nil {
		return 0, fmt.Errorf("i2c-dac: read temperature: %w", err)
	}
	raw := int16(uint16(r[0])<<8|uint16(r[1])) >> 4
	if raw <= 0 {
		return 0, nil
	}
	return uint16(raw) / 16, nil
}

func (d *DAC) setFine(v uint32) error {
	v = d.Clamp(v)
	if v > dacMax {
		v = dacMax
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.tx(d.dac, []byte{cmdWriteUpdate, byte(v >> 8), byte(v)}, nil); err != nil {
		return fmt.Errorf("i2c-dac: write %d: %w", v, err)
	}
	d.fine = v
	logger.Debug("i2c-dac: fine <- %d", v)
	return nil
}

func (d *DAC) ApplyOutput(out od.Output) error {
	if out.Action != od.AdjustFine {
		return fmt.Errorf("i2c-dac: action %s: %w", out.Action, oscillator.ErrNotSupported)
	}
	return d.setFine(out.Setpoint)
}

func (d *DAC) Calibrate(params *od.CalibrationParameters, ch oscillator.PhaseSource, sign int) (*od.CalibrationResults, error) {
	return oscillator.RunCalibration(d.setFine, params, ch, sign)
}

func (d *DAC) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closer == nil {
		return nil
	}
	err := d.closer.Close()
	d.closer = nil
	return err
}
