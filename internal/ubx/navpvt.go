package ubx

import (
	"encoding/binary"
	"time"
)

// NAV class и ID (u-blox)
const (
	ClassNAV   = 0x01
	IDNAVPVT   = 0x07 // NAV-PVT: position, velocity, time
	NAVPVTSize = 92   // минимальный размер payload NAV-PVT
)

// NAV-PVT offsets в payload
const (
	navPvtYear    = 4  // uint16
	navPvtMonth   = 6  // uint8
	navPvtDay     = 7  // uint8
	navPvtHour    = 8  // uint8
	navPvtMin     = 9  // uint8
	navPvtSec     = 10 // uint8
	navPvtValid   = 11 // uint8: bit0 validDate, bit1 validTime, bit2 fullyResolved
	navPvtNano    = 16 // int32, наносекунды
	navPvtFixType = 20 // uint8
	navPvtFlags   = 21 // uint8: bit0 gnssFixOK
	navPvtNumSV   = 23 // uint8
)

// Valid flags NAV-PVT
const (
	NavPVTValidDate          = 1 << 0
	NavPVTValidTime          = 1 << 1
	NavPVTValidFullyResolved = 1 << 2

	NavPVTFlagGnssFixOK = 1 << 0
)

// Типы fix NAV-PVT
const (
	FixNone     = 0
	FixDeadReck = 1
	Fix2D       = 2
	Fix3D       = 3
	FixGNSSDR   = 4
	FixTimeOnly = 5
)

// NAVPVTFix — поля NAV-PVT, нужные для оценки пригодности PPS.
type NAVPVTFix struct {
	FixType   uint8
	GnssFixOK bool
	NumSV     uint8
	Time      time.Time
	TimeValid bool
}

// Usable сообщает, что fix достаточен для дисциплинирования (3D или time-only с gnssFixOK).
func (f NAVPVTFix) Usable() bool {
	return f.GnssFixOK && (f.FixType == Fix3D || f.FixType == FixTimeOnly)
}

// ParseNAVPVTFix парсит тип fix, флаги и время из payload UBX-NAV-PVT.
func ParseNAVPVTFix(payload []byte) (NAVPVTFix, bool) {
	if len(payload) < NAVPVTSize {
		return NAVPVTFix{}, false
	}
	f := NAVPVTFix{
		FixType:   payload[navPvtFixType],
		GnssFixOK: payload[navPvtFlags]&NavPVTFlagGnssFixOK != 0,
		NumSV:     payload[navPvtNumSV],
	}
	f.Time, f.TimeValid = ParseNAVPVTTime(payload)
	return f, true
}

// ParseNAVPVTTime парсит UTC время из payload UBX-NAV-PVT (92+ байт).
// Возвращает (time.Time в UTC, true) если valid указывает на пригодное время.
func ParseNAVPVTTime(payload []byte) (time.Time, bool) {
	if len(payload) < NAVPVTSize {
		return time.Time{}, false
	}
	valid := payload[navPvtValid]
	if valid&NavPVTValidTime == 0 {
		return time.Time{}, false
	}
	year := int(binary.LittleEndian.Uint16(payload[navPvtYear:]))
	month := int(payload[navPvtMonth])
	day := int(payload[navPvtDay])
	hour := int(payload[navPvtHour])
	min := int(payload[navPvtMin])
	sec := int(payload[navPvtSec])
	nano := 0
	n := int32(binary.LittleEndian.Uint32(payload[navPvtNano : navPvtNano+4]))
	if n < 0 {
		nano = 0
	} else if n > 999999999 {
		nano = 999999999
	} else {
		nano = int(n)
	}
	t := time.Date(year, time.Month(month), day, hour, min, sec, nano, time.UTC)
	return t, true
}

// IsNAVPVTPacket возвращает true, если пакет — UBX-NAV-PVT (class 0x01, id 0x07).
func IsNAVPVTPacket(packet []byte) bool {
	return IsPacket(packet, ClassNAV, IDNAVPVT, NAVPVTSize)
}
