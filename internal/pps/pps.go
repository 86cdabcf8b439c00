// Package pps — канал к PPS-устройству осциллятора: ожидание импульса с таймаутом,
// чтение ошибки фазы (int32, ns) и запись коррекции фазы (скачок).
package pps

import (
	"errors"
	"syscall"
)

// SampleSize — размер одного сэмпла на устройстве (int32, ns)
const SampleSize = 4

// ErrTimeout — за отведённое время устройство не стало готовым к чтению.
var ErrTimeout = errors.New("pps: timeout waiting for pulse")

// IsInterrupted сообщает, что ожидание прервано сигналом (EINTR).
func IsInterrupted(err error) bool {
	return errors.Is(err, syscall.EINTR)
}

// IsTransient сообщает, что ошибку чтения можно повторить (EINTR, EAGAIN).
func IsTransient(err error) bool {
	return errors.Is(err, syscall.EINTR) || errors.Is(err, syscall.EAGAIN)
}
