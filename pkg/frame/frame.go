// Package frame implements the LPv35 wire codec: a length-prefixed,
// AES-128-GCM authenticated frame format shared by LAN unicast and the LAN
// discovery beacon (Spec Section 3.2, 4.1). pkg/ble does not use it; BLE
// payloads travel in that package's own AES-CBC envelope.
package frame

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
)

// Wire layout constants (Spec Section 3.2).
const (
	HeadSize       = 4  // "00 00 66 99"
	FixedHeadSize  = 14 // VERSION/RESERVED + RESERVED + SEQUENCE + TYPE + LENGTH; doubles as AAD.
	NonceSize      = 12
	TagSize        = 16
	TailSize       = 4
	KeySize        = 16
	ReturnCodeSize = 4 // leading field of the decrypted plaintext

	// MinSize is the smallest possible LPv35 frame: all fixed fields plus a
	// zero-length ciphertext (HEAD+FIXED_HEAD+NONCE+TAG+TAIL).
	MinSize = HeadSize + FixedHeadSize + NonceSize + TagSize + TailSize

	// MaxCiphertextLen bounds LENGTH (nonce+ciphertext+tag) to 4KiB (Spec 4.1 edge cases).
	MaxCiphertextLen = 4096
)

var (
	head = [HeadSize]byte{0x00, 0x00, 0x66, 0x99}
	tail = [TailSize]byte{0x00, 0x00, 0x99, 0x66}
)

// Frame is a decoded LPv35 frame.
type Frame struct {
	Sequence  uint32
	Type      Opcode
	Plaintext []byte // ReturnCode(4) || payload, as decrypted
}

// ReturnCode returns the 4-byte big-endian return code leading Plaintext,
// and the remaining payload bytes.
func (f *Frame) ReturnCode() (uint32, []byte) {
	if len(f.Plaintext) < ReturnCodeSize {
		return 0, nil
	}
	return binary.BigEndian.Uint32(f.Plaintext[:ReturnCodeSize]), f.Plaintext[ReturnCodeSize:]
}

// Serialize encodes a frame: HEAD, 14-byte fixed head, a fresh random
// NONCE, AES-128-GCM(plaintext) with AAD = fixed head, TAG, TAIL.
func Serialize(key [KeySize]byte, seq uint32, typ Opcode, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, err
	}
	if gcm.Overhead() != TagSize {
		return nil, ErrInvalidKey
	}

	length := NonceSize + len(plaintext) + TagSize
	buf := make([]byte, HeadSize+FixedHeadSize+NonceSize+len(plaintext)+TagSize+TailSize)

	offset := 0
	offset += copy(buf[offset:], head[:])

	fixedHeadStart := offset
	buf[offset] = 0 // VERSION=0 (high nibble) | RESERVED=0 (low nibble)
	offset++
	buf[offset] = 0 // RESERVED byte, must be zero
	offset++
	binary.BigEndian.PutUint32(buf[offset:], seq)
	offset += 4
	binary.BigEndian.PutUint32(buf[offset:], uint32(typ))
	offset += 4
	binary.BigEndian.PutUint32(buf[offset:], uint32(length))
	offset += 4
	fixedHead := buf[fixedHeadStart:offset]

	nonce := buf[offset : offset+NonceSize]
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	offset += NonceSize

	sealed := gcm.Seal(buf[offset:offset], nonce, plaintext, fixedHead)
	offset += len(sealed)

	offset += copy(buf[offset:], tail[:])
	_ = offset

	return buf, nil
}

// Parse decodes an LPv35 frame. It validates HEAD/TAIL and LENGTH before
// attempting decryption, then authenticates and decrypts the ciphertext
// with AAD = the 14-byte fixed head.
func Parse(key [KeySize]byte, data []byte) (*Frame, error) {
	if len(data) < MinSize {
		return nil, ErrFrameFormat
	}
	if string(data[:HeadSize]) != string(head[:]) {
		return nil, ErrFrameFormat
	}
	if string(data[len(data)-TailSize:]) != string(tail[:]) {
		return nil, ErrFrameFormat
	}

	fixedHead := data[HeadSize : HeadSize+FixedHeadSize]
	reserved := fixedHead[1]
	if reserved != 0 {
		return nil, ErrFrameFormat
	}
	seq := binary.BigEndian.Uint32(fixedHead[2:6])
	typ := Opcode(binary.BigEndian.Uint32(fixedHead[6:10]))
	length := binary.BigEndian.Uint32(fixedHead[10:14])

	if length > MaxCiphertextLen {
		return nil, ErrFrameSize
	}

	body := data[HeadSize+FixedHeadSize : len(data)-TailSize]
	if uint32(len(body)) != length {
		return nil, ErrFrameFormat
	}
	if len(body) < NonceSize+TagSize {
		return nil, ErrFrameFormat
	}

	nonce := body[:NonceSize]
	ciphertextAndTag := body[NonceSize:]

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, ErrInvalidKey
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, NonceSize)
	if err != nil {
		return nil, ErrInvalidKey
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertextAndTag, fixedHead)
	if err != nil {
		return nil, ErrFrameAuth
	}

	return &Frame{Sequence: seq, Type: typ, Plaintext: plaintext}, nil
}

// BufferSize returns the encoded wire size for a frame carrying
// plaintextLen bytes of plaintext.
func BufferSize(plaintextLen int) int {
	return HeadSize + FixedHeadSize + NonceSize + plaintextLen + TagSize + TailSize
}

// IndexHead returns the offset of the next HEAD constant in data, or -1 if
// none is present. Used by stream readers to resync after garbage bytes.
func IndexHead(data []byte) int {
	for i := 0; i+HeadSize <= len(data); i++ {
		if string(data[i:i+HeadSize]) == string(head[:]) {
			return i
		}
	}
	return -1
}

// PeekTotalSize reports the total wire size of the frame starting at the
// beginning of data, once enough bytes have arrived to read LENGTH. ok is
// false if data does not yet contain a full fixed head to read from, or if
// data does not begin with HEAD.
func PeekTotalSize(data []byte) (total int, ok bool) {
	if len(data) < HeadSize+FixedHeadSize {
		return 0, false
	}
	if string(data[:HeadSize]) != string(head[:]) {
		return 0, false
	}
	length := binary.BigEndian.Uint32(data[HeadSize+10 : HeadSize+FixedHeadSize])
	return HeadSize + FixedHeadSize + int(length) + TailSize, true
}
