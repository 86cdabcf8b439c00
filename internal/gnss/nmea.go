package gnss

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"

	"github.com/shiwa/timecard-mini/oscillatord/internal/logger"
)

// NMEA — источник по строкам RMC (GPRMC/GNRMC). qErr в NMEA нет, всегда 0.
type NMEA struct {
	port       io.ReadCloser
	staleAfter time.Duration
	now        func() time.Time

	mu      sync.Mutex
	state   State
	fix     Fix
	lastRMC time.Time
	err     error

	closed atomic.Bool
	wg     sync.WaitGroup
}

// OpenNMEA открывает последовательный порт приёмника NMEA.
func OpenNMEA(device string, baud int, readTimeout time.Duration) (*NMEA, error) {
	if baud == 0 {
		baud = DefaultBaud
	}
	p, err := serial.OpenPort(&serial.Config{Name: device, Baud: baud, ReadTimeout: readTimeout})
	if err != nil {
		return nil, fmt.Errorf("nmea open %s: %w", device, err)
	}
	return NewNMEA(p), nil
}

// NewNMEA создаёт источник поверх готового потока.
func NewNMEA(port io.ReadCloser) *NMEA {
	return &NMEA{
		port:       port,
		staleAfter: defaultStaleAfter,
		now:        time.Now,
		state:      StateWaiting,
	}
}

// Start запускает фоновое чтение строк.
func (n *NMEA) Start(ctx context.Context) {
	n.wg.Add(1)
	go n.readLoop(ctx)
}

func (n *NMEA) readLoop(ctx context.Context) {
	defer n.wg.Done()
	rd := bufio.NewReader(n.port)
	for ctx.Err() == nil && !n.closed.Load() {
		line, err := rd.ReadString('\n')
		if err != nil {
			// таймаут порта, строка может прийти частично
			if errors.Is(err, io.EOF) {
				if line != "" {
					n.handle(line)
				}
				continue
			}
			if n.closed.Load() {
				return
			}
			logger.Error("gnss: nmea read: %v", err)
			n.mu.Lock()
			n.state = StateError
			n.err = err
			n.mu.Unlock()
			return
		}
		n.handle(line)
	}
}

func (n *NMEA) handle(line string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$GP") && !strings.HasPrefix(line, "$GN") {
		return
	}
	if !strings.Contains(line, "RMC") {
		return
	}
	t, active, ok := parseRMC(line)
	if !ok {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastRMC = n.now()
	n.fix.FixOK = active
	if active {
		n.state = StateValid
		n.fix.UTC = t
	} else {
		n.state = StateInvalid
	}
}

// Err возвращает ошибку чтения, переведшую источник в StateError.
func (n *NMEA) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

// Data возвращает последнее состояние RMC.
func (n *NMEA) Data() (State, Fix) {
	n.mu.Lock()
	defer n.mu.Unlock()
	state := n.state
	if state != StateError && !n.lastRMC.IsZero() && n.now().Sub(n.lastRMC) > n.staleAfter {
		state = StateWaiting
	}
	return state, n.fix
}

// Close останавливает чтение и закрывает порт.
func (n *NMEA) Close() error {
	if n.closed.Swap(true) {
		return nil
	}
	err := n.port.Close()
	n.wg.Wait()
	return err
}

// parseRMC парсит $GPRMC/$GNRMC: поле 1 = hhmmss.ss, поле 2 = A/V, поле 9 = ddmmyy.
// active = статус A; время возвращается только для A.
func parseRMC(line string) (t time.Time, active, ok bool) {
	if i := strings.Index(line, "*"); i >= 0 {
		line = line[:i]
	}
	parts := strings.Split(line, ",")
	if len(parts) < 10 {
		return time.Time{}, false, false
	}
	switch parts[2] {
	case "V":
		return time.Time{}, false, true
	case "A":
	default:
		return time.Time{}, false, false
	}
	timeStr, dateStr := parts[1], parts[9]
	if len(timeStr) < 6 || len(dateStr) < 6 {
		return time.Time{}, false, false
	}
	hh, _ := strconv.Atoi(timeStr[0:2])
	mm, _ := strconv.Atoi(timeStr[2:4])
	ss, _ := strconv.Atoi(timeStr[4:6])
	nsec := 0
	if len(timeStr) >= 8 && timeStr[6] == '.' {
		fracStr := timeStr[7:]
		if len(fracStr) > 9 {
			fracStr = fracStr[:9]
		}
		frac, _ := strconv.Atoi(fracStr)
		for i := len(fracStr); i < 9; i++ {
			frac *= 10
		}
		nsec = frac
	}
	day, _ := strconv.Atoi(dateStr[0:2])
	month, _ := strconv.Atoi(dateStr[2:4])
	year, _ := strconv.Atoi(dateStr[4:6])
	if year < 80 {
		year += 2000
	} else {
		year += 1900
	}
	return time.Date(year, time.Month(month), day, hh, mm, ss, nsec, time.UTC), true, true
}
