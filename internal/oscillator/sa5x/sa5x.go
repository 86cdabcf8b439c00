// Package sa5x — Microchip SA5x (MAC) по последовательному порту.
// Команды "\r\n{get,Param}" / "\r\n{set,Param,value}", ответы вида "[=value]".
package sa5x

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/shiwa/timecard-mini/oscillatord/internal/config"
	"github.com/shiwa/timecard-mini/oscillatord/internal/logger"
	"github.com/shiwa/timecard-mini/oscillatord/internal/od"
	"github.com/shiwa/timecard-mini/oscillatord/internal/oscillator"
)

const (
	// Name — имя модели в конфиге
	Name = "sa5x"

	DefaultBaud       = 57600
	replyTimeout      = time.Second
	serialReadTimeout = 100 * time.Millisecond
)

// Параметры MAC
const (
	paramFine   = "DigitalTuning"
	paramCoarse = "Steer"
	paramTemp   = "Temperature"
	paramLocked = "Locked"
)

var errNoReply = errors.New("no reply")

func init() {
	oscillator.Register(Name, func(cfg *config.Config) (oscillator.Oscillator, error) {
		device, ok := cfg.Get("sa5x-device")
		if !ok || device == "" {
			return nil, errors.New("sa5x-device not defined in config")
		}
		baud, err := cfg.GetUint("sa5x-baud", DefaultBaud)
		if err != nil {
			return nil, err
		}
		port, err := serial.Open(device, &serial.Mode{BaudRate: int(baud)})
		if err != nil {
			return nil, fmt.Errorf("failed to open serial %s: %w", device, err)
		}
		if err := port.SetReadTimeout(serialReadTimeout); err != nil {
			port.Close()
			return nil, err
		}
		logger.Info("sa5x: using %s (%d baud)", device, baud)
		return New(port), nil
	})
}

// SA5x — бэкенд Microchip MAC. Запросы сериализуются мьютексом.
type SA5x struct {
	oscillator.DACBounds

	mu      sync.Mutex
	port    io.ReadWriteCloser
	timeout time.Duration
	closed  bool
}

// New создаёт бэкенд поверх открытого порта
func New(port io.ReadWriteCloser) *SA5x {
	return &SA5x{port: port, timeout: replyTimeout}
}

func (s *SA5x) Name() string { return Name }

// command отправляет команду и ждёт ответ в квадратных скобках.
func (s *SA5x) command(cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", fmt.Errorf("sa5x: %s: port closed", cmd)
	}
	if _, err := io.WriteString(s.port, "\r\n"+cmd+"\r\n"); err != nil {
		return "", fmt.Errorf("sa5x: write %s: %w", cmd, err)
	}
	deadline := time.Now().Add(s.timeout)
	var buf []byte
	chunk := make([]byte, 64)
	for time.Now().Before(deadline) {
		n, err := s.port.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if reply, ok := parseReply(buf); ok {
			return reply, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("sa5x: read %s: %w", cmd, err)
		}
	}
	return "", fmt.Errorf("sa5x: %s: %w within %v", cmd, errNoReply, s.timeout)
}

// parseReply ищет первый "[...]" в буфере и возвращает содержимое скобок.
func parseReply(buf []byte) (string, bool) {
	start := bytes.IndexByte(buf, '[')
	if start < 0 {
		return "", false
	}
	end := bytes.IndexByte(buf[start:], ']')
	if end < 0 {
		return "", false
	}
	return string(buf[start+1 : start+end]), true
}

func (s *SA5x) get(param string) (string, error) {
	cmd := "{get," + param + "}"
	reply, err := s.command(cmd)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(reply, "=") {
		return "", fmt.Errorf("sa5x: %s: unexpected reply %q", cmd, reply)
	}
	return strings.TrimSpace(reply[1:]), nil
}

func (s *SA5x) getUint(param string) (uint32, error) {
	v, err := s.get(param)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(v, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("sa5x: %s: %w", param, err)
	}
	return uint32(n), nil
}

func (s *SA5x) set(param string, v uint32) error {
	cmd := fmt.Sprintf("{set,%s,%d}", param, v)
	reply, err := s.command(cmd)
	if err != nil {
		return err
	}
	if strings.HasPrefix(reply, "!") {
		return fmt.Errorf("sa5x: %s rejected: %q", cmd, reply)
	}
	logger.Debug("sa5x: %s <- %d", param, v)
	return nil
}

func (s *SA5x) GetCtrl() (oscillator.Ctrl, error) {
	fine, err := s.getUint(paramFine)
	if err != nil {
		return oscillator.Ctrl{}, err
	}
	coarse, err := s.getUint(paramCoarse)
	if err != nil {
		return oscillator.Ctrl{}, err
	}
	locked, err := s.getUint(paramLocked)
	if err != nil {
		return oscillator.Ctrl{}, err
	}
	return oscillator.Ctrl{Fine: fine, Coarse: coarse, Lock: locked != 0}, nil
}

// GetTemp возвращает температуру в целых °C (отрицательные → 0).
func (s *SA5x) GetTemp() (uint16, error) {
	v, err := s.get(paramTemp)
	if err != nil {
		return 0, err
	}
	c, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("sa5x: temperature %q: %w", v, err)
	}
	if c <= 0 {
		return 0, nil
	}
	return uint16(math.Min(math.Round(c), math.MaxUint16)), nil
}

func (s *SA5x) ApplyOutput(out od.Output) error {
	switch out.Action {
	case od.AdjustFine:
		return s.set(paramFine, s.Clamp(out.Setpoint))
	case od.AdjustCoarse:
		return s.set(paramCoarse, out.Setpoint)
	}
	return fmt.Errorf("sa5x: action %s: %w", out.Action, oscillator.ErrNotSupported)
}

func (s *SA5x) Calibrate(params *od.CalibrationParameters, ch oscillator.PhaseSource, sign int) (*od.CalibrationResults, error) {
	return oscillator.RunCalibration(func(v uint32) error {
		return s.set(paramFine, s.Clamp(v))
	}, params, ch, sign)
}

func (s *SA5x) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}
