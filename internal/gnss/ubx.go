package gnss

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shiwa/timecard-mini/oscillatord/internal/logger"
	"github.com/shiwa/timecard-mini/oscillatord/internal/ubx"
)

type packetReader interface {
	ReadUBX() ([]byte, error)
	Close() error
}

// UBX — источник по протоколу u-blox: NAV-PVT даёт fix, TIM-TP даёт qErr.
type UBX struct {
	rd         packetReader
	staleAfter time.Duration
	now        func() time.Time

	mu      sync.Mutex
	state   State
	fix     Fix
	lastPVT time.Time
	err     error

	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewUBX создаёт источник поверх порта. Чтение начинается после Start.
func NewUBX(rd packetReader) *UBX {
	return &UBX{
		rd:         rd,
		staleAfter: defaultStaleAfter,
		now:        time.Now,
		state:      StateWaiting,
	}
}

// Start запускает фоновое чтение пакетов до отмены ctx или Close.
func (u *UBX) Start(ctx context.Context) {
	u.wg.Add(1)
	go u.readLoop(ctx)
}

func (u *UBX) readLoop(ctx context.Context) {
	defer u.wg.Done()
	for ctx.Err() == nil && !u.closed.Load() {
		packet, err := u.rd.ReadUBX()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
				errors.Is(err, ubx.ErrTruncated) || errors.Is(err, ubx.ErrChecksum) {
				continue
			}
			if u.closed.Load() {
				return
			}
			u.fail(err)
			return
		}
		u.handle(packet)
	}
}

func (u *UBX) handle(packet []byte) {
	switch {
	case ubx.IsNAVPVTPacket(packet):
		f, ok := ubx.ParseNAVPVTFix(ubx.Payload(packet))
		if !ok {
			return
		}
		u.mu.Lock()
		u.fix.FixType = f.FixType
		u.fix.FixOK = f.GnssFixOK
		if f.TimeValid {
			u.fix.UTC = f.Time
		}
		u.lastPVT = u.now()
		if f.Usable() {
			u.state = StateValid
		} else {
			u.state = StateInvalid
		}
		u.mu.Unlock()
		logger.Debug("gnss: NAV-PVT fix %d ok %v sv %d", f.FixType, f.GnssFixOK, f.NumSV)
	case ubx.IsTIMTPPacket(packet):
		tp, ok := ubx.ParseTIMTP(ubx.Payload(packet))
		if !ok {
			return
		}
		u.mu.Lock()
		u.fix.QErr = tp.QErr
		u.mu.Unlock()
	}
}

func (u *UBX) fail(err error) {
	logger.Error("gnss: read: %v", err)
	u.mu.Lock()
	u.state = StateError
	u.err = err
	u.mu.Unlock()
}

// Data возвращает последнее состояние. Fix старше staleAfter считается ожиданием.
func (u *UBX) Data() (State, Fix) {
	u.mu.Lock()
	defer u.mu.Unlock()
	state := u.state
	if state != StateError && !u.lastPVT.IsZero() && u.now().Sub(u.lastPVT) > u.staleAfter {
		state = StateWaiting
	}
	return state, u.fix
}

// Err возвращает ошибку чтения, переведшую источник в StateError.
func (u *UBX) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

// Close останавливает чтение и закрывает порт. Повторный вызов безопасен.
func (u *UBX) Close() error {
	if u.closed.Swap(true) {
		return nil
	}
	err := u.rd.Close()
	u.wg.Wait()
	return err
}
