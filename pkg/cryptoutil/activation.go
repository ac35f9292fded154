package cryptoutil

import (
	"crypto/sha256"
	"hash"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ActivationKeys bundles the BLE key-ladder artefacts produced at cloud
// activation time (Spec Section 4.6: "login_key and sec_key are activation
// artefacts"). Spec.md leaves their derivation out of scope (it happens in
// the cloud-activation flow, §1 Non-goals), but this core still needs a way
// to bootstrap a runnable device without a live cloud call — for local
// testing and for the example binary in cmd/lpv35-device.
type ActivationKeys struct {
	LoginKey [16]byte
	SecKey   [16]byte
}

// DeriveActivationKeys expands the cloud-issued local_key into the two BLE
// activation artefacts using HKDF-SHA256, following the same
// Extract-then-Expand shape the teacher's key-derivation helper uses for
// Matter's PAKE material. This is a bootstrap convenience, not a
// replacement for the real cloud activation handshake.
func DeriveActivationKeys(localKey [16]byte, deviceID string) (ActivationKeys, error) {
	newHash := func() hash.Hash { return sha256.New() }
	reader := hkdf.New(newHash, localKey[:], nil, []byte("lpv35-ble-activation:"+deviceID))

	var out ActivationKeys
	if _, err := io.ReadFull(reader, out.LoginKey[:]); err != nil {
		return ActivationKeys{}, err
	}
	if _, err := io.ReadFull(reader, out.SecKey[:]); err != nil {
		return ActivationKeys{}, err
	}
	return out, nil
}
