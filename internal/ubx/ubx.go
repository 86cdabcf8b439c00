// Package ubx — минимальный кодек u-blox UBX для демона: кадр и контрольная сумма,
// CFG-TP5 на запись, NAV-PVT и TIM-TP на чтение.
package ubx

import (
	"encoding/binary"
	"errors"
)

// ErrChecksum — контрольная сумма пакета не совпала
var ErrChecksum = errors.New("ubx checksum mismatch")

// ErrTruncated — порт замолчал посреди кадра, кадр отброшен
var ErrTruncated = errors.New("ubx truncated frame")

const (
	Sync1 = 0xB5
	Sync2 = 0x62

	// HeaderSize — sync(2) + class + id + length(2)
	HeaderSize = 6
	// checksumSize — CK_A, CK_B
	checksumSize = 2
)

// Классы и ID сообщений
const (
	ClassCFG = 0x06
	IDTP5    = 0x31

	ClassTIM = 0x0D
	IDTIMTP  = 0x01
)

// Header — class, id и длина payload
type Header struct {
	Class  uint8
	ID     uint8
	Length uint16
}

// Checksum — 8-битный Fletcher по class..payload
func Checksum(data []byte) (ckA, ckB uint8) {
	for _, b := range data {
		ckA += b
		ckB += ckA
	}
	return ckA, ckB
}

// EncodePacket собирает кадр: sync, header, payload, checksum
func EncodePacket(class, id uint8, payload []byte) []byte {
	buf := make([]byte, 0, HeaderSize+len(payload)+checksumSize)
	buf = append(buf, Sync1, Sync2, class, id)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(payload)))
	buf = append(buf, payload...)
	ckA, ckB := Checksum(buf[2:])
	return append(buf, ckA, ckB)
}

// ParseHeader разбирает заголовок; false — нет sync или мало байт.
func ParseHeader(buf []byte) (Header, bool) {
	if len(buf) < HeaderSize || buf[0] != Sync1 || buf[1] != Sync2 {
		return Header{}, false
	}
	return Header{
		Class:  buf[2],
		ID:     buf[3],
		Length: binary.LittleEndian.Uint16(buf[4:HeaderSize]),
	}, true
}

// IsPacket проверяет class/id и что payload целиком в буфере и не короче minPayload.
func IsPacket(packet []byte, class, id uint8, minPayload int) bool {
	h, ok := ParseHeader(packet)
	if !ok || h.Class != class || h.ID != id {
		return false
	}
	return int(h.Length) >= minPayload && len(packet) >= HeaderSize+int(h.Length)
}

// Payload возвращает payload кадра или nil.
func Payload(packet []byte) []byte {
	h, ok := ParseHeader(packet)
	if !ok || len(packet) < HeaderSize+int(h.Length) {
		return nil
	}
	return packet[HeaderSize : HeaderSize+int(h.Length)]
}

// VerifyChecksum проверяет два последних байта кадра.
func VerifyChecksum(packet []byte) bool {
	if len(packet) < HeaderSize+checksumSize {
		return false
	}
	n := len(packet) - checksumSize
	ckA, ckB := Checksum(packet[2:n])
	return packet[n] == ckA && packet[n+1] == ckB
}
