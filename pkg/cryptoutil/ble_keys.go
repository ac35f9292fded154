package cryptoutil

import (
	"crypto/aes"
	"crypto/md5" //nolint:gosec // wire-format compatibility, not a security boundary choice
)

// BLE encryption-mode key ladder (Spec Section 4.6).
type KeyMode int

const (
	KeyModeNone KeyMode = iota
	Key11               // auth_key || uuid || service_rand
	Key12               // KEY11 || pair_rand
	Key14               // login_key || sec_key
	Key15               // login_key || sec_key || pair_rand
	Key16               // auth_key || md5(uuid) || service_rand
)

// KeyLadderInputs bundles the material the BLE key ladder draws from.
// Fields are populated as the pairing/activation flow progresses; only the
// ones relevant to the requested mode need be set.
type KeyLadderInputs struct {
	AuthKey     [32]byte // pre-activation pre-shared key
	UUID        [16]byte // device uuid, packed/compressed to 16 bytes
	ServiceRand [16]byte // arrives with the request IV
	PairRand    [6]byte
	LoginKey    [16]byte // activation artefact
	SecKey      [16]byte // activation artefact
	Key11       [16]byte // cached result of a prior Key11 derivation, needed by Key12
}

// DeriveBLEKey computes one rung of the MD5-based key ladder.
func DeriveBLEKey(mode KeyMode, in KeyLadderInputs) [16]byte {
	var buf []byte
	switch mode {
	case Key11:
		buf = append(buf, in.AuthKey[:]...)
		buf = append(buf, in.UUID[:]...)
		buf = append(buf, in.ServiceRand[:]...)
	case Key12:
		buf = append(buf, in.Key11[:]...)
		buf = append(buf, in.PairRand[:]...)
	case Key14:
		buf = append(buf, in.LoginKey[:]...)
		buf = append(buf, in.SecKey[:]...)
	case Key15:
		buf = append(buf, in.LoginKey[:]...)
		buf = append(buf, in.SecKey[:]...)
		buf = append(buf, in.PairRand[:]...)
	case Key16:
		uuidDigest := md5.Sum(in.UUID[:])
		buf = append(buf, in.AuthKey[:]...)
		buf = append(buf, uuidDigest[:]...)
		buf = append(buf, in.ServiceRand[:]...)
	default:
		return [16]byte{}
	}
	return md5.Sum(buf)
}

// RegisterKey computes the device-info response "register key": the
// service rand encrypted under AES-128-ECB, keyed by the leading 16 bytes
// of the 32-byte auth_key (the reference AES context is AES-128), used so
// the pairing app can recover service_rand to compute KEY11/KEY16 itself
// (Spec Section 4.6, original ble_cryption.c tuya_ble_register_key_generate).
func RegisterKey(authKey [32]byte, serviceRand [16]byte) ([16]byte, error) {
	var key16 [16]byte
	copy(key16[:], authKey[:16])
	return ECBEncryptBlock(key16, serviceRand)
}

// ECBEncryptBlock encrypts exactly one 16-byte AES block under ECB mode.
// Go's crypto/cipher intentionally provides no ECB mode (it's unsafe as a
// general-purpose block-cipher mode); this one-block helper exists only to
// reproduce a wire-exact legacy computation, never to encrypt bulk data.
func ECBEncryptBlock(key [16]byte, plaintext [16]byte) ([16]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return [16]byte{}, err
	}
	var out [16]byte
	block.Encrypt(out[:], plaintext[:])
	return out, nil
}

// ECBDecryptBlock is the inverse of ECBEncryptBlock.
func ECBDecryptBlock(key [16]byte, ciphertext [16]byte) ([16]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return [16]byte{}, err
	}
	var out [16]byte
	block.Decrypt(out[:], ciphertext[:])
	return out, nil
}
