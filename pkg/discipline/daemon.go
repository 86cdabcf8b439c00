package discipline

import (
	"context"
	"fmt"

	"github.com/shiwa/timecard-mini/oscillatord/internal/config"
	"github.com/shiwa/timecard-mini/oscillatord/internal/gnss"
	"github.com/shiwa/timecard-mini/oscillatord/internal/logger"
	"github.com/shiwa/timecard-mini/oscillatord/internal/od"
	"github.com/shiwa/timecard-mini/oscillatord/internal/oscillator"
	"github.com/shiwa/timecard-mini/oscillatord/internal/pps"
)

// Подменяются в тестах: приёмник без TTY и короткая пауза цикла.
var (
	openGNSS   = gnss.New
	cycleDelay = CycleDelay
)

// RunDaemon открывает осциллятор, PPS устройство, движок и приёмник по конфигу
// и крутит Loop до остановки. Все открытые ресурсы закрываются на любом пути выхода.
func RunDaemon(ctx context.Context, cfg *config.Config, stop *Shutdown) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	debug, err := cfg.GetBool("debug", false)
	if err != nil {
		return err
	}
	logger.SetDebug(debug)
	if logger.DebugEnabled() {
		for _, key := range cfg.Keys() {
			value, _ := cfg.Get(key)
			logger.Debug("config %s = %s", key, value)
		}
	}

	logger.Debug("parsing configuration")
	turns, err := cfg.GetInt("turns", 0)
	if err != nil {
		return err
	}

	osc, err := oscillator.New(cfg)
	if err != nil {
		return err
	}
	defer closeLogged("oscillator", osc)
	logger.Info("oscillator model %s", osc.Name())
	if ctrl, err := osc.GetCtrl(); err != nil {
		logger.Warn("oscillator controls: %v", err)
	} else {
		logger.Debug("oscillator controls: fine %d, coarse %d", ctrl.Fine, ctrl.Coarse)
	}

	device, ok := cfg.Get("pps-device")
	if !ok || device == "" {
		return fmt.Errorf("pps-device not defined in config %s", cfg.Path())
	}
	ch, err := pps.Open(device)
	if err != nil {
		return err
	}
	defer closeLogged("pps device", ch)
	logger.Info("PPS device %s", ch.Path())

	odPath := cfg.GetDefault("libod-config-path", cfg.Path())
	logger.Debug("creating disciplining engine from %s", odPath)
	engine, err := od.New(odPath)
	if err != nil {
		return fmt.Errorf("od_new %s: %w", odPath, err)
	}
	defer closeLogged("od", engine)
	osc.SetDACMin(engine.DACMin())
	osc.SetDACMax(engine.DACMax())

	opposite, err := cfg.GetBool("opposite-phase-error", false)
	if err != nil {
		return err
	}
	sign := 1
	if opposite {
		sign = -1
		logger.Info("taking the opposite of the phase error reported")
	}

	src, err := openGNSS(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to listen to the receiver: %w", err)
	}
	defer closeLogged("gnss", src)

	loop := &Loop{
		Channel:    ch,
		Oscillator: osc,
		Engine:     engine,
		GNSS:       src,
		Sign:       sign,
		Turns:      turns,
		Stop:       stop,
		CycleDelay: cycleDelay,
	}
	logger.Info("starting main loop")
	if err := loop.Run(); err != nil {
		return err
	}
	logger.Info("main loop stopped after %d cycles", loop.Cycles())
	return nil
}

type closer interface {
	Close() error
}

func closeLogged(what string, c closer) {
	if err := c.Close(); err != nil {
		logger.Warn("close %s: %v", what, err)
	}
}
