// Package cryptoutil collects the key-derivation and checksum primitives
// shared by the LAN (pkg/lan) and BLE (pkg/ble) session engines. Keeping
// them in one place isolates the one deliberately unusual transform in this
// codebase (DeriveSessionKey) so it is never mistaken for a general-purpose
// AEAD helper (Spec Section 9, Design Notes).
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
)

// HMACSHA256 computes HMAC-SHA256(key, data), used both sides of the LAN
// key-negotiation FSM (Spec Section 4.3 step 1-2).
func HMACSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// DeriveSessionKey implements the LAN session-key transform of Spec
// Section 4.3 step 2 / Section 8 invariant 5:
//
//	session_key = AES-128-GCM_encrypt(localKey, nonce=randA[:12], AAD=nil, pt=randA XOR randB)
//
// truncated to 16 bytes, discarding the GCM tag entirely. The nonce is the
// leading 12 bytes of the 16-byte randA (the reference implementation
// passes the standard 12-byte GCM nonce length against the 16-byte randA
// buffer). This is NOT an authenticated-encryption use of GCM — it reuses
// the block cipher's keystream as a one-way mixing function for wire
// compatibility with the original device firmware. Do not reuse this
// helper, or its pattern, for anything that needs actual AEAD semantics;
// use pkg/frame for that.
func DeriveSessionKey(localKey, randA, randB [16]byte) ([16]byte, error) {
	var xored [16]byte
	for i := range xored {
		xored[i] = randA[i] ^ randB[i]
	}

	block, err := aes.NewCipher(localKey[:])
	if err != nil {
		return [16]byte{}, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, 12)
	if err != nil {
		return [16]byte{}, err
	}

	// Seal appends a tag we intentionally discard; only the leading 16
	// keystream-mixed bytes become the session key.
	sealed := gcm.Seal(nil, randA[:12], xored[:], nil)

	var key [16]byte
	copy(key[:], sealed[:16])
	return key, nil
}
