// Package logger — единый вывод логов oscillatord с префиксом, уровнем debug и учётом quiet.
package logger

import (
	"io"
	"log"
	"sync/atomic"
)

const prefix = "oscillatord: "

// Quiet при true отключает информационные сообщения (Info, Warn); Error выводится всегда.
var Quiet bool

var debug atomic.Bool

var std = log.New(log.Writer(), "", log.LstdFlags)

// SetDebug включает вывод Debug (ключ конфига debug).
func SetDebug(on bool) {
	debug.Store(on)
}

// DebugEnabled сообщает, включён ли вывод Debug.
func DebugEnabled() bool {
	return debug.Load()
}

// SetOutput перенаправляет вывод (используется в тестах).
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

// Debug выводит отладочное сообщение, только если включён debug.
func Debug(format string, args ...interface{}) {
	if !debug.Load() {
		return
	}
	std.Printf(prefix+"DEBUG "+format, args...)
}

// Info выводит сообщение с префиксом "oscillatord: ", если Quiet == false.
func Info(format string, args ...interface{}) {
	if Quiet {
		return
	}
	std.Printf(prefix+format, args...)
}

// Warn — как Info, но с пометкой WARN.
func Warn(format string, args ...interface{}) {
	if Quiet {
		return
	}
	std.Printf(prefix+"WARN "+format, args...)
}

// Error выводит сообщение об ошибке с префиксом "oscillatord: " всегда.
func Error(format string, args ...interface{}) {
	std.Printf(prefix+"ERROR "+format, args...)
}
