package ble

import (
	"encoding/binary"

	"github.com/edgelink/lpv35/pkg/cryptoutil"
)

// EncryptMode is the leading envelope byte selecting which key-ladder rung
// (if any) protects the frame (Spec Section 4.6).
type EncryptMode uint8

const (
	ModeNone EncryptMode = iota
	ModeKey11
	ModeKey12
	ModeKey14
	ModeKey15
	ModeKey16
)

// innerHeaderSize is SN(4) + ACK_SN(4) + CMD(2) + LEN(2).
const innerHeaderSize = 12

// crcSize is the trailing CRC16 on the inner logical frame.
const crcSize = 2

// Frame is the BLE logical frame carried inside the encryption envelope
// (Spec Section 4.6): SN | ACK_SN | CMD | LEN | DATA | CRC16.
type Frame struct {
	SN     uint32
	AckSN  uint32
	CMD    uint16
	Data   []byte
}

// EncodeInner serializes the logical frame and appends its CRC16, but does
// not encrypt it.
func (f Frame) EncodeInner() []byte {
	buf := make([]byte, innerHeaderSize+len(f.Data)+crcSize)
	binary.BigEndian.PutUint32(buf[0:4], f.SN)
	binary.BigEndian.PutUint32(buf[4:8], f.AckSN)
	binary.BigEndian.PutUint16(buf[8:10], f.CMD)
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(f.Data)))
	copy(buf[innerHeaderSize:], f.Data)
	crc := cryptoutil.CRC16(buf[:innerHeaderSize+len(f.Data)])
	binary.BigEndian.PutUint16(buf[innerHeaderSize+len(f.Data):], crc)
	return buf
}

// DecodeInner parses a logical frame and validates its CRC16.
func DecodeInner(raw []byte) (Frame, error) {
	if len(raw) < innerHeaderSize+crcSize {
		return Frame{}, ErrFrameTooShort
	}
	dataLen := int(binary.BigEndian.Uint16(raw[10:12]))
	want := innerHeaderSize + dataLen + crcSize
	if len(raw) != want {
		return Frame{}, ErrFrameTooShort
	}
	body := raw[:innerHeaderSize+dataLen]
	gotCRC := binary.BigEndian.Uint16(raw[innerHeaderSize+dataLen:])
	if cryptoutil.CRC16(body) != gotCRC {
		return Frame{}, ErrCRCMismatch
	}
	f := Frame{
		SN:    binary.BigEndian.Uint32(raw[0:4]),
		AckSN: binary.BigEndian.Uint32(raw[4:8]),
		CMD:   binary.BigEndian.Uint16(raw[8:10]),
	}
	if dataLen > 0 {
		f.Data = append([]byte(nil), raw[innerHeaderSize:innerHeaderSize+dataLen]...)
	}
	return f, nil
}

// Encrypt wraps the inner logical frame in the BLE envelope: a leading mode
// byte, then — when mode is not ModeNone — a 16-byte IV followed by the
// AES-128-CBC ciphertext of the PKCS7-padded inner frame (Spec Section 4.6,
// original ble_cryption.c tuya_ble_encryption).
func Encrypt(mode EncryptMode, key [16]byte, iv [16]byte, f Frame) ([]byte, error) {
	inner := f.EncodeInner()
	if mode == ModeNone {
		out := make([]byte, 1+len(inner))
		out[0] = byte(mode)
		copy(out[1:], inner)
		return out, nil
	}
	ct, err := cryptoutil.CBCEncrypt(key, iv, inner)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 1+16+len(ct))
	out[0] = byte(mode)
	copy(out[1:17], iv[:])
	copy(out[17:], ct)
	return out, nil
}

// Decrypt unwraps a BLE envelope, returning the decoded logical frame, the
// encryption mode in effect, and — for modes other than ModeNone — the IV
// carried in the envelope (which for Key11/Key16 doubles as service_rand
// for the caller's key-ladder derivation).
func Decrypt(key [16]byte, raw []byte) (f Frame, mode EncryptMode, iv [16]byte, err error) {
	if len(raw) < 1 {
		return Frame{}, ModeNone, iv, ErrFrameTooShort
	}
	mode = EncryptMode(raw[0])
	if mode == ModeNone {
		f, err = DecodeInner(raw[1:])
		return f, mode, iv, err
	}
	if len(raw) < 17 {
		return Frame{}, mode, iv, ErrFrameTooShort
	}
	copy(iv[:], raw[1:17])
	inner, err := cryptoutil.CBCDecrypt(key, iv, raw[17:])
	if err != nil {
		return Frame{}, mode, iv, err
	}
	f, err = DecodeInner(inner)
	return f, mode, iv, err
}
