// oscillatord — демон дисциплинирования осциллятора по 1PPS от GNSS приёмника.
//
// Использование:
//
//	oscillatord [--quiet] <config_file_path>
//
// Первый SIGINT/SIGTERM завершает текущий цикл и останавливает демон,
// второй завершает процесс немедленно.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shiwa/timecard-mini/oscillatord/internal/config"
	"github.com/shiwa/timecard-mini/oscillatord/internal/logger"
	"github.com/shiwa/timecard-mini/oscillatord/pkg/discipline"

	// модели осцилляторов регистрируются в init()
	_ "github.com/shiwa/timecard-mini/oscillatord/internal/oscillator/dummy"
	_ "github.com/shiwa/timecard-mini/oscillatord/internal/oscillator/i2cdac"
	_ "github.com/shiwa/timecard-mini/oscillatord/internal/oscillator/mro50"
	_ "github.com/shiwa/timecard-mini/oscillatord/internal/oscillator/sa5x"
)

var quiet bool

var rootCmd = &cobra.Command{
	Use:           "oscillatord <config_file_path>",
	Short:         "Discipline a local oscillator against GNSS 1PPS",
	Args:          configArg,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Quiet = quiet
		return run(args[0])
	},
}

func init() {
	rootCmd.Flags().BoolVar(&quiet, "quiet", false, "меньше вывода (только ошибки)")
}

// configArg требует ровно один путь; при ошибке печатает usage, как и без SilenceUsage.
func configArg(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		fmt.Fprint(cmd.ErrOrStderr(), cmd.UsageString())
		return fmt.Errorf("usage: %s config_file_path", cmd.Name())
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("%v", err)
		os.Exit(exitCode(err))
	}
}

func run(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	stop := discipline.NewShutdown()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go handleSignals(sigCh, stop, os.Exit)

	return discipline.RunDaemon(context.Background(), cfg, stop)
}

// handleSignals: первый сигнал просит цикл остановиться, второй вызывает exit(1).
func handleSignals(sigCh <-chan os.Signal, stop *discipline.Shutdown, exit func(int)) {
	for sig := range sigCh {
		if stop.Request() {
			logger.Error("получен второй сигнал %v, немедленный выход", sig)
			exit(1)
			return
		}
		logger.Info("получен сигнал %v, завершение после текущего цикла...", sig)
	}
}

// exitCode переносит errno из цепочки ошибок в код выхода, иначе 1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) && errno != 0 {
		if errno > 255 {
			return 255
		}
		return int(errno)
	}
	return 1
}
