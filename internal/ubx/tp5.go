package ubx

import (
	"encoding/binary"
	"time"
)

// TP5PayloadSize — размер payload UBX-CFG-TP5
const TP5PayloadSize = 32

// Флаги CFG-TP5 (смещение 28)
const (
	TP5Active         = 1 << 0
	TP5LockGnssFreq   = 1 << 1
	TP5LockedOtherSet = 1 << 2
	TP5IsFreq         = 1 << 3 // period задан в Гц, а не в мкс
	TP5IsLength       = 1 << 4 // pulseLen задан в нс, а не долей периода
	TP5AlignToTow     = 1 << 5
	TP5Polarity       = 1 << 6 // передний фронт
)

// TP5 — настройка выхода time pulse приёмника.
type TP5 struct {
	Index          uint8
	CableDelay     int16 // ns
	RFGroupDelay   int16 // ns
	Period         uint32
	PeriodLocked   uint32
	PulseLen       uint32
	PulseLenLocked uint32
	UserDelay      int32 // ns
	Flags          uint32
}

// DefaultPulseLen — длительность импульса по умолчанию
const DefaultPulseLen = 5 * time.Millisecond

// TimePulse возвращает 1PPS на TIMEPULSE с выравниванием на TOW.
// pulseWidth <= 0 заменяется на DefaultPulseLen.
func TimePulse(pulseWidth time.Duration, cableDelayNs int16) TP5 {
	if pulseWidth <= 0 {
		pulseWidth = DefaultPulseLen
	}
	width := uint32(pulseWidth.Nanoseconds())
	return TP5{
		CableDelay:     cableDelayNs,
		Period:         uint32(time.Second / time.Microsecond),
		PeriodLocked:   uint32(time.Second / time.Microsecond),
		PulseLen:       width,
		PulseLenLocked: width,
		Flags:          TP5Active | TP5LockGnssFreq | TP5LockedOtherSet | TP5IsLength | TP5AlignToTow,
	}
}

// Marshal сериализует TP5 (version 0)
func (c TP5) Marshal() []byte {
	p := make([]byte, 0, TP5PayloadSize)
	p = append(p, c.Index, 0, 0, 0)
	p = binary.LittleEndian.AppendUint16(p, uint16(c.CableDelay))
	p = binary.LittleEndian.AppendUint16(p, uint16(c.RFGroupDelay))
	for _, v := range []uint32{c.Period, c.PeriodLocked, c.PulseLen, c.PulseLenLocked, uint32(c.UserDelay), c.Flags} {
		p = binary.LittleEndian.AppendUint32(p, v)
	}
	return p
}

// BuildCFGTP5 собирает полный пакет CFG-TP5
func BuildCFGTP5(c TP5) []byte {
	return EncodePacket(ClassCFG, IDTP5, c.Marshal())
}
