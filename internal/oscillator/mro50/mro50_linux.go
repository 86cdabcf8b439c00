//go:build linux

package mro50

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ioctl номера драйвера: _IOR/_IOW('M', nr, u32)
const (
	iocWrite = 1
	iocRead  = 2

	iocNRShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30
)

func ioc(dir, nr, size uintptr) uint {
	return uint(dir<<iocDirShift | 'M'<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift)
}

var (
	ioctlReadFine     = ioc(iocRead, 1, 4)
	ioctlReadCoarse   = ioc(iocRead, 2, 4)
	ioctlAdjustFine   = ioc(iocWrite, 3, 4)
	ioctlAdjustCoarse = ioc(iocWrite, 4, 4)
	ioctlReadTemp     = ioc(iocRead, 5, 4)
)

type ioctlDevice struct {
	fd int
}

func openDevice(path string) (device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &ioctlDevice{fd: fd}, nil
}

func (d *ioctlDevice) read(r register) (uint32, error) {
	var req uint
	switch r {
	case regFine:
		req = ioctlReadFine
	case regCoarse:
		req = ioctlReadCoarse
	case regTemp:
		req = ioctlReadTemp
	default:
		return 0, fmt.Errorf("read %s: %w", r, unix.EINVAL)
	}
	return unix.IoctlGetUint32(d.fd, req)
}

func (d *ioctlDevice) write(r register, v uint32) error {
	var req uint
	switch r {
	case regFine:
		req = ioctlAdjustFine
	case regCoarse:
		req = ioctlAdjustCoarse
	default:
		return fmt.Errorf("write %s: %w", r, unix.EINVAL)
	}
	return unix.IoctlSetPointerInt(d.fd, req, int(int32(v)))
}

func (d *ioctlDevice) Close() error {
	return unix.Close(d.fd)
}
