//go:build linux

package pps

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"golang.org/x/sys/unix"
)

// Device — открытое PPS-устройство (O_RDWR). Не безопасен для конкурентного использования.
type Device struct {
	path string
	fd   int
}

// Open открывает устройство на чтение и запись
func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Device{path: path, fd: fd}, nil
}

// Path возвращает путь к устройству
func (d *Device) Path() string {
	return d.path
}

// Wait ждёт готовности устройства к чтению не дольше timeout.
// EINTR возвращается как есть (проверять через IsInterrupted).
func (d *Device) Wait(timeout time.Duration) error {
	var rfds unix.FdSet
	rfds.Zero()
	rfds.Set(d.fd)
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	n, err := unix.Select(d.fd+1, &rfds, nil, nil, &tv)
	if err != nil {
		return fmt.Errorf("select %s: %w", d.path, err)
	}
	if n == 0 {
		return ErrTimeout
	}
	return nil
}

// ReadPhaseError читает один сэмпл ошибки фазы (ns)
func (d *Device) ReadPhaseError() (int32, error) {
	var buf [SampleSize]byte
	n, err := unix.Read(d.fd, buf[:])
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", d.path, err)
	}
	if n != SampleSize {
		return 0, fmt.Errorf("read %s: %w", d.path, io.ErrUnexpectedEOF)
	}
	return int32(binary.NativeEndian.Uint32(buf[:])), nil
}

// ApplyPhaseOffset записывает коррекцию фазы (ns): устройство выполняет скачок фазы.
func (d *Device) ApplyPhaseOffset(phase int32) error {
	var buf [SampleSize]byte
	binary.NativeEndian.PutUint32(buf[:], uint32(phase))
	n, err := unix.Write(d.fd, buf[:])
	if err != nil {
		return fmt.Errorf("write %s: %w", d.path, err)
	}
	if n != SampleSize {
		return fmt.Errorf("write %s: short write (%d bytes)", d.path, n)
	}
	return nil
}

// Close закрывает устройство; повторный вызов ничего не делает.
func (d *Device) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}
