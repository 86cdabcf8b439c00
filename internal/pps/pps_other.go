//go:build !linux

package pps

import (
	"errors"
	"time"
)

var errUnsupported = errors.New("pps: device channel is only supported on linux")

// Device — заглушка на не-Linux.
type Device struct {
	path string
}

// Open — заглушка на не-Linux.
func Open(path string) (*Device, error) {
	_ = path
	return nil, errUnsupported
}

// Path возвращает путь к устройству
func (d *Device) Path() string { return d.path }

// Wait — заглушка на не-Linux.
func (d *Device) Wait(timeout time.Duration) error {
	_ = timeout
	return errUnsupported
}

// ReadPhaseError — заглушка на не-Linux.
func (d *Device) ReadPhaseError() (int32, error) { return 0, errUnsupported }

// ApplyPhaseOffset — заглушка на не-Linux.
func (d *Device) ApplyPhaseOffset(phase int32) error {
	_ = phase
	return errUnsupported
}

// Close — заглушка на не-Linux.
func (d *Device) Close() error { return nil }
