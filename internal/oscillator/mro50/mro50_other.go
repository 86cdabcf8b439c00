//go:build !linux

package mro50

import "errors"

func openDevice(path string) (device, error) {
	return nil, errors.New("mRO50: only supported on linux")
}
