package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"testing"

	"github.com/shiwa/timecard-mini/oscillatord/internal/pps"
	"github.com/shiwa/timecard-mini/oscillatord/pkg/discipline"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", errors.New("boom"), 1},
		{"errno", fmt.Errorf("read phase error: %w", syscall.EIO), int(syscall.EIO)},
		{"wrapped twice", fmt.Errorf("a: %w", fmt.Errorf("b: %w", syscall.ENOENT)), int(syscall.ENOENT)},
		{"timeout", fmt.Errorf("wait: %w", pps.ErrTimeout), 1},
		{"huge errno", syscall.Errno(4096), 255},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestArity(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetErr(&out)
	defer rootCmd.SetErr(nil)
	for _, args := range [][]string{{}, {"a", "b"}} {
		out.Reset()
		rootCmd.SetArgs(args)
		err := rootCmd.Execute()
		if err == nil || !strings.Contains(err.Error(), "config_file_path") {
			t.Errorf("args %v: expected usage error, got %v", args, err)
		}
		if !strings.Contains(out.String(), "Usage:") {
			t.Errorf("args %v: usage not printed, stderr %q", args, out.String())
		}
	}
}

func TestHandleSignals(t *testing.T) {
	tests := []struct {
		name     string
		sigs     []os.Signal
		wantExit bool
	}{
		{"sigint stops gracefully", []os.Signal{os.Interrupt}, false},
		{"sigterm stops gracefully", []os.Signal{syscall.SIGTERM}, false},
		{"int then term exits", []os.Signal{os.Interrupt, syscall.SIGTERM}, true},
		{"term then int exits", []os.Signal{syscall.SIGTERM, os.Interrupt}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sigCh := make(chan os.Signal, len(tt.sigs))
			for _, sig := range tt.sigs {
				sigCh <- sig
			}
			close(sigCh)

			stop := discipline.NewShutdown()
			code := -1
			handleSignals(sigCh, stop, func(c int) { code = c })

			if !stop.Requested() {
				t.Error("first signal must request a graceful stop")
			}
			if tt.wantExit && code != 1 {
				t.Errorf("exit code %d, want 1", code)
			}
			if !tt.wantExit && code != -1 {
				t.Errorf("unexpected exit(%d) after one signal", code)
			}
		})
	}
}

func TestMissingConfig(t *testing.T) {
	rootCmd.SetArgs([]string{t.TempDir() + "/absent.yml"})
	err := rootCmd.Execute()
	if !errors.Is(err, syscall.ENOENT) {
		t.Fatalf("err = %v", err)
	}
	if exitCode(err) != int(syscall.ENOENT) {
		t.Errorf("exit code %d", exitCode(err))
	}
}
