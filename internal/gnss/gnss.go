// Package gnss — источник данных GNSS приёмника для контура дисциплинирования.
// Чтение порта идёт в фоновой горутине; Data() не блокируется.
package gnss

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shiwa/timecard-mini/oscillatord/internal/config"
	"github.com/shiwa/timecard-mini/oscillatord/internal/logger"
	"github.com/shiwa/timecard-mini/oscillatord/internal/ubx"
)

// ErrReceiver — связь с приёмником потеряна
var ErrReceiver = errors.New("gnss receiver error")

// State — класс достоверности данных приёмника
type State int

const (
	StateInvalid State = iota
	StateWaiting
	StateValid
	StateError
)

func (s State) String() string {
	switch s {
	case StateInvalid:
		return "invalid"
	case StateWaiting:
		return "waiting"
	case StateValid:
		return "valid"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Valid отображает состояние в признак пригодности fix.
// Invalid и Waiting → false, Valid → true, Error → ErrReceiver.
func (s State) Valid() (bool, error) {
	switch s {
	case StateInvalid, StateWaiting:
		return false, nil
	case StateValid:
		return true, nil
	}
	return false, fmt.Errorf("%w: state %s", ErrReceiver, s)
}

// Fix — последние данные приёмника
type Fix struct {
	QErr    int32 // квантовая ошибка PPS, ps
	FixType uint8
	FixOK   bool
	UTC     time.Time
}

// Source — источник данных GNSS. Err хранит причину StateError.
type Source interface {
	Data() (State, Fix)
	Err() error
	Close() error
}

// Значения по умолчанию
const (
	DefaultBaud        = 9600
	DefaultProtocol    = "ubx"
	defaultReadTimeout = 500 * time.Millisecond
	defaultStaleAfter  = 3 * time.Second
)

// New открывает приёмник по ключам gnss-* и запускает фоновое чтение.
func New(ctx context.Context, cfg *config.Config) (Source, error) {
	device, ok := cfg.Get("gnss-device-tty")
	if !ok || device == "" {
		return nil, errors.New("gnss-device-tty not defined in config")
	}
	baud, err := cfg.GetUint("gnss-baud", DefaultBaud)
	if err != nil {
		return nil, err
	}
	protocol := strings.ToLower(cfg.GetDefault("gnss-protocol", DefaultProtocol))
	staleAfter, err := cfg.GetDuration("gnss-stale-after", defaultStaleAfter)
	if err != nil {
		return nil, err
	}

	switch protocol {
	case "ubx":
		port, err := ubx.Open(device, int(baud), defaultReadTimeout)
		if err != nil {
			return nil, err
		}
		reconfigure, err := cfg.GetBool("gnss-receiver-reconfigure", false)
		if err != nil {
			port.Close()
			return nil, err
		}
		if reconfigure {
			if err := configureTimePulse(cfg, port); err != nil {
				port.Close()
				return nil, err
			}
		}
		u := NewUBX(port)
		u.staleAfter = staleAfter
		u.Start(ctx)
		logger.Info("gnss: ubx receiver on %s (%d baud)", device, baud)
		return u, nil
	case "nmea":
		n, err := OpenNMEA(device, int(baud), defaultReadTimeout)
		if err != nil {
			return nil, err
		}
		n.staleAfter = staleAfter
		n.Start(ctx)
		logger.Info("gnss: nmea receiver on %s (%d baud)", device, baud)
		return n, nil
	}
	return nil, fmt.Errorf("unknown gnss-protocol %q", protocol)
}

type timePulseConfigurer interface {
	ConfigureTimePulse(c ubx.TP5) error
}

func configureTimePulse(cfg *config.Config, port timePulseConfigurer) error {
	widthMs, err := cfg.GetUint("gnss-pulse-width-ms", 0)
	if err != nil {
		return err
	}
	cableDelay, err := cfg.GetInt("gnss-cable-delay-ns", 0)
	if err != nil {
		return err
	}
	tp := ubx.TimePulse(time.Duration(widthMs)*time.Millisecond, int16(cableDelay))
	if err := port.ConfigureTimePulse(tp); err != nil {
		return fmt.Errorf("gnss: CFG-TP5: %w", err)
	}
	logger.Info("gnss: time pulse configured, width %d ns, cable delay %d ns", tp.PulseLen, tp.CableDelay)
	return nil
}
