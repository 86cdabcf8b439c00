package ubx

import "encoding/binary"

// TIMTPSize — размер payload UBX-TIM-TP
const TIMTPSize = 16

// TIMTP — данные следующего time pulse.
type TIMTP struct {
	TowMS    uint32
	TowSubMS uint32
	QErr     int32 // квантовая ошибка импульса, ps
	Week     uint16
	Flags    uint8
	RefInfo  uint8
}

// IsTIMTPPacket возвращает true, если пакет — UBX-TIM-TP.
func IsTIMTPPacket(packet []byte) bool {
	return IsPacket(packet, ClassTIM, IDTIMTP, TIMTPSize)
}

// ParseTIMTP парсит payload UBX-TIM-TP.
func ParseTIMTP(payload []byte) (TIMTP, bool) {
	if len(payload) < TIMTPSize {
		return TIMTP{}, false
	}
	return TIMTP{
		TowMS:    binary.LittleEndian.Uint32(payload[0:4]),
		TowSubMS: binary.LittleEndian.Uint32(payload[4:8]),
		QErr:     int32(binary.LittleEndian.Uint32(payload[8:12])),
		Week:     binary.LittleEndian.Uint16(payload[12:14]),
		Flags:    payload[14],
		RefInfo:  payload[15],
	}, true
}

// Marshal сериализует TIMTP в 16-байтный payload
func (t TIMTP) Marshal() []byte {
	p := make([]byte, TIMTPSize)
	binary.LittleEndian.PutUint32(p[0:4], t.TowMS)
	binary.LittleEndian.PutUint32(p[4:8], t.TowSubMS)
	binary.LittleEndian.PutUint32(p[8:12], uint32(t.QErr))
	binary.LittleEndian.PutUint16(p[12:14], t.Week)
	p[14] = t.Flags
	p[15] = t.RefInfo
	return p
}
