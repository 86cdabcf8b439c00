package ubx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"
)

func TestTIMTPRoundTrip(t *testing.T) {
	in := TIMTP{TowMS: 345600000, TowSubMS: 12, QErr: -1234, Week: 2300, Flags: 3, RefInfo: 1}
	pkt := EncodePacket(ClassTIM, IDTIMTP, in.Marshal())
	if !IsTIMTPPacket(pkt) {
		t.Fatal("expected TIM-TP packet")
	}
	got, ok := ParseTIMTP(Payload(pkt))
	if !ok || got != in {
		t.Errorf("got %+v, want %+v", got, in)
	}
	if _, ok := ParseTIMTP(make([]byte, 4)); ok {
		t.Error("expected !ok for short payload")
	}
}

type rwc struct {
	io.Reader
	bytes.Buffer
}

func (r *rwc) Read(p []byte) (int, error) { return r.Reader.Read(p) }
func (r *rwc) Close() error               { return nil }

func TestReadUBX(t *testing.T) {
	tp := EncodePacket(ClassTIM, IDTIMTP, TIMTP{QErr: 42}.Marshal())
	stream := append([]byte{0x00, Sync1, 0x13}, tp...) // мусор перед sync
	bad := append([]byte(nil), tp...)
	bad[len(bad)-1] ^= 0xff
	stream = append(stream, bad...)

	p := NewPort(&rwc{Reader: bytes.NewReader(stream)})
	pkt, err := p.ReadUBX()
	if err != nil {
		t.Fatalf("ReadUBX: %v", err)
	}
	if !IsTIMTPPacket(pkt) {
		t.Fatalf("unexpected packet % x", pkt)
	}
	if _, err := p.ReadUBX(); !errors.Is(err, ErrChecksum) {
		t.Errorf("ожидали ErrChecksum, получили %v", err)
	}
	if _, err := p.ReadUBX(); !errors.Is(err, io.EOF) {
		t.Errorf("ожидали io.EOF в конце потока, получили %v", err)
	}
}

// chunkedPort отдаёт данные кусками; пустой кусок — таймаут порта (0, io.EOF).
type chunkedPort struct {
	chunks [][]byte
	bytes.Buffer
}

func (c *chunkedPort) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	if len(c.chunks[0]) == 0 {
		c.chunks = c.chunks[1:]
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if len(c.chunks[0]) == 0 {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func (c *chunkedPort) Close() error { return nil }

func TestReadUBXTimeoutMidFrame(t *testing.T) {
	frame := EncodePacket(ClassNAV, IDNAVPVT, make([]byte, NAVPVTSize))
	tests := []struct {
		name string
		cut  int
	}{
		{"after sync", 2},
		{"inside header", 4},
		{"inside payload", 10},
		{"before checksum", len(frame) - 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPort(&chunkedPort{chunks: [][]byte{
				append([]byte(nil), frame[:tt.cut]...),
				{},
				append([]byte(nil), frame...),
			}})
			if _, err := p.ReadUBX(); !errors.Is(err, ErrTruncated) {
				t.Fatalf("ожидали ErrTruncated, получили %v", err)
			}
			pkt, err := p.ReadUBX()
			if err != nil {
				t.Fatalf("после обрыва кадр не прочитан: %v", err)
			}
			if !IsNAVPVTPacket(pkt) {
				t.Errorf("unexpected packet % x", pkt)
			}
		})
	}
}

func TestConfigureTimePulse(t *testing.T) {
	dev := &rwc{Reader: bytes.NewReader(nil)}
	p := NewPort(dev)
	if err := p.ConfigureTimePulse(TimePulse(0, 0)); err != nil {
		t.Fatal(err)
	}
	pkt := dev.Buffer.Bytes()
	if !IsPacket(pkt, ClassCFG, IDTP5, TP5PayloadSize) || !VerifyChecksum(pkt) {
		t.Fatalf("unexpected CFG-TP5 packet % x", pkt)
	}
	payload := Payload(pkt)
	if got := binary.LittleEndian.Uint32(payload[8:]); got != 1000000 {
		t.Errorf("period %d us", got)
	}
	if got := binary.LittleEndian.Uint32(payload[16:]); got != 5000000 {
		t.Errorf("pulse length %d ns", got)
	}
	if got := binary.LittleEndian.Uint32(payload[28:]); got != 0x37 {
		t.Errorf("flags %#x", got)
	}
}

func TestTimePulse(t *testing.T) {
	c := TimePulse(100*time.Millisecond, -50)
	if c.PulseLen != 100000000 || c.PulseLenLocked != 100000000 || c.CableDelay != -50 {
		t.Errorf("unexpected config %+v", c)
	}
	p := c.Marshal()
	if len(p) != TP5PayloadSize || int16(binary.LittleEndian.Uint16(p[4:])) != -50 {
		t.Errorf("payload % x", p)
	}
}
