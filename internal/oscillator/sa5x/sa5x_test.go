package sa5x

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shiwa/timecard-mini/oscillatord/internal/od"
	"github.com/shiwa/timecard-mini/oscillatord/internal/oscillator"
)

var cmdRe = regexp.MustCompile(`\{(get|set),(\w+)(?:,(-?\d+))?\}`)

// fakeMAC разбирает записанные команды и кладёт ответы в буфер чтения.
type fakeMAC struct {
	mu     sync.Mutex
	params map[string]string
	out    strings.Builder
	writes []string
	silent bool
	closed bool
}

func newFakeMAC() *fakeMAC {
	return &fakeMAC{params: map[string]string{
		paramFine:   "1000",
		paramCoarse: "-5",
		paramTemp:   "41.6",
		paramLocked: "1",
	}}
}

func (f *fakeMAC) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, string(p))
	if f.silent {
		return len(p), nil
	}
	m := cmdRe.FindStringSubmatch(string(p))
	switch {
	case m == nil:
		f.out.WriteString("[?]\r\n")
	case m[1] == "get":
		fmt.Fprintf(&f.out, "[=%s]\r\n", f.params[m[2]])
	default:
		f.params[m[2]] = m[3]
		f.out.WriteString("[=]\r\n")
	}
	return len(p), nil
}

func (f *fakeMAC) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.out.String()
	n := copy(p, s)
	f.out.Reset()
	f.out.WriteString(s[n:])
	return n, nil
}

func (f *fakeMAC) Close() error {
	f.closed = true
	return nil
}

func TestGetCtrl(t *testing.T) {
	s := New(newFakeMAC())
	c, err := s.GetCtrl()
	if err != nil {
		t.Fatal(err)
	}
	// "-5" как uint32
	if c.Fine != 1000 || c.Coarse != uint32(0xfffffffb) || !c.Lock {
		t.Errorf("ctrl %+v", c)
	}
	temp, err := s.GetTemp()
	if err != nil || temp != 42 {
		t.Errorf("GetTemp = %d, %v", temp, err)
	}
}

func TestApplyOutput(t *testing.T) {
	mac := newFakeMAC()
	s := New(mac)
	s.SetDACMin(0)
	s.SetDACMax(2000)

	if err := s.ApplyOutput(od.Output{Action: od.AdjustFine, Setpoint: 5000}); err != nil {
		t.Fatal(err)
	}
	if mac.params[paramFine] != "2000" {
		t.Errorf("fine = %s, want clamped 2000", mac.params[paramFine])
	}
	if last := mac.writes[len(mac.writes)-1]; last != "\r\n{set,DigitalTuning,2000}\r\n" {
		t.Errorf("command %q", last)
	}
	if err := s.ApplyOutput(od.Output{Action: od.PhaseJump}); !errors.Is(err, oscillator.ErrNotSupported) {
		t.Errorf("phase jump: %v", err)
	}
}

func TestNoReply(t *testing.T) {
	mac := newFakeMAC()
	mac.silent = true
	s := New(mac)
	s.timeout = 20 * time.Millisecond
	if _, err := s.GetTemp(); !errors.Is(err, errNoReply) {
		t.Errorf("ожидали errNoReply, получили %v", err)
	}
}

func TestParseReply(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"[=42]\r\n", "=42", true},
		{"garbage\r\n[=1.5]", "=1.5", true},
		{"[=12", "", false},
		{"no brackets", "", false},
		{"[]", "", true},
	}
	for _, tt := range tests {
		got, ok := parseReply([]byte(tt.in))
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseReply(%q) = %q, %v", tt.in, got, ok)
		}
	}
}

func TestClose(t *testing.T) {
	mac := newFakeMAC()
	s := New(mac)
	if err := s.Close(); err != nil || !mac.closed {
		t.Fatalf("Close = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := s.GetCtrl(); err == nil {
		t.Error("GetCtrl after Close must fail")
	}
}
