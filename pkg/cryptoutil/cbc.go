package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
)

// PKCS7Pad pads data to a multiple of blockSize (Spec Section 4.6). Unlike
// ble_cryption.c's ble_add_pkcs, which only pads when len%16 != 0, this
// follows the standard PKCS7 rule of always padding, adding a full pad block
// when data is already block-aligned.
func PKCS7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(padLen)
	}
	return out
}

// PKCS7Unpad removes and validates PKCS7 padding.
func PKCS7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidBlock
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, ErrInvalidBlock
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, ErrInvalidBlock
		}
	}
	return data[:len(data)-padLen], nil
}

// CBCEncrypt encrypts PKCS7-padded plaintext under AES-128-CBC (Spec
// Section 4.6: BLE frame envelope).
func CBCEncrypt(key [16]byte, iv [16]byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	padded := PKCS7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, iv[:])
	mode.CryptBlocks(out, padded)
	return out, nil
}

// CBCDecrypt decrypts ciphertext and removes PKCS7 padding.
func CBCDecrypt(key [16]byte, iv [16]byte, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrInvalidBlock
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, iv[:])
	mode.CryptBlocks(out, ciphertext)
	return PKCS7Unpad(out, aes.BlockSize)
}
