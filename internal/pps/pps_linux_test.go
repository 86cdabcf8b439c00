//go:build linux

package pps

import (
	"encoding/binary"
	"errors"
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// pipeDevice открывает FIFO как устройство: запись в другой конец имитирует PPS.
func pipeDevice(t *testing.T) (*Device, *os.File) {
	t.Helper()
	path := t.TempDir() + "/pps"
	if err := unix.Mkfifo(path, 0o600); err != nil {
		t.Skipf("mkfifo: %v", err)
	}
	// O_RDWR на FIFO не блокируется на Linux
	d, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	w, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		w.Close()
		d.Close()
	})
	return d, w
}

func TestWaitTimeout(t *testing.T) {
	d, _ := pipeDevice(t)
	err := d.Wait(20 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("ожидали ErrTimeout, получили %v", err)
	}
}

func TestReadPhaseError(t *testing.T) {
	d, w := pipeDevice(t)
	var buf [SampleSize]byte
	v := int32(-500)
	binary.NativeEndian.PutUint32(buf[:], uint32(v))
	if _, err := w.Write(buf[:]); err != nil {
		t.Fatal(err)
	}
	if err := d.Wait(time.Second); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	got, err := d.ReadPhaseError()
	if err != nil {
		t.Fatal(err)
	}
	if got != -500 {
		t.Errorf("got %d, want -500", got)
	}
}

func TestApplyPhaseOffset(t *testing.T) {
	d, _ := pipeDevice(t)
	if err := d.ApplyPhaseOffset(-300); err != nil {
		t.Fatal(err)
	}
	// в FIFO записанное читается обратно тем же дескриптором
	got, err := d.ReadPhaseError()
	if err != nil {
		t.Fatal(err)
	}
	if got != -300 {
		t.Errorf("got %d, want -300", got)
	}
}

func TestCloseIdempotent(t *testing.T) {
	d, _ := pipeDevice(t)
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("повторный Close: %v", err)
	}
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(t.TempDir() + "/missing")
	if !errors.Is(err, unix.ENOENT) {
		t.Errorf("ожидали ENOENT, получили %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err       error
		transient bool
		intr      bool
	}{
		{unix.EINTR, true, true},
		{unix.EAGAIN, true, false},
		{unix.EIO, false, false},
		{ErrTimeout, false, false},
	}
	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.transient {
			t.Errorf("IsTransient(%v) = %v", tt.err, got)
		}
		if got := IsInterrupted(tt.err); got != tt.intr {
			t.Errorf("IsInterrupted(%v) = %v", tt.err, got)
		}
	}
}
