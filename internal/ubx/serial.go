package ubx

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// Port — обёртка над последовательным портом для UBX
type Port struct {
	port io.ReadWriteCloser
}

// Open открывает последовательный порт; readTimeout ограничивает одно чтение (0 — без ограничения).
func Open(device string, baud int, readTimeout time.Duration) (*Port, error) {
	c := &serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: readTimeout,
	}
	p, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", device, err)
	}
	return &Port{port: p}, nil
}

// NewPort оборачивает готовый поток (тесты, псевдотерминалы).
func NewPort(rw io.ReadWriteCloser) *Port {
	return &Port{port: rw}
}

// WritePacket отправляет готовый UBX пакет
func (p *Port) WritePacket(packet []byte) error {
	_, err := p.port.Write(packet)
	return err
}

// ConfigureTimePulse отправляет CFG-TP5 на приёмник. ACK не ждём: подтверждение
// придёт в общий поток и будет пропущено читателем.
func (p *Port) ConfigureTimePulse(c TP5) error {
	return p.WritePacket(BuildCFGTP5(c))
}

// ReadUBX читает один UBX пакет (ждёт sync, затем class/id/length, затем payload+checksum).
// Таймаут порта до sync проявляется как io.EOF, после sync как ErrTruncated.
func (p *Port) ReadUBX() ([]byte, error) {
	var prev, b [1]byte
	// Читаем до sync
	for {
		if _, err := io.ReadFull(p.port, b[:]); err != nil {
			return nil, err
		}
		if prev[0] == Sync1 && b[0] == Sync2 {
			break
		}
		prev = b
	}
	// class, id, length[2]
	header := make([]byte, HeaderSize, 512)
	header[0], header[1] = Sync1, Sync2
	if err := p.readFrame(header[2:]); err != nil {
		return nil, err
	}
	length := int(header[4]) | int(header[5])<<8
	rest := make([]byte, length+2)
	if err := p.readFrame(rest); err != nil {
		return nil, err
	}
	buf := append(header, rest...)
	if !VerifyChecksum(buf) {
		return buf, ErrChecksum
	}
	return buf, nil
}

// readFrame дочитывает часть кадра. Таймаут посреди кадра даёт ErrTruncated:
// кадр отброшен, следующий ReadUBX снова ищет sync.
func (p *Port) readFrame(buf []byte) error {
	_, err := io.ReadFull(p.port, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return ErrTruncated
	}
	return err
}

// Close закрывает порт
func (p *Port) Close() error {
	if p.port == nil {
		return nil
	}
	return p.port.Close()
}
