package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"testing"
)

func TestDeriveSessionKeyMatchesGCMKeystream(t *testing.T) {
	var localKey, randA, randB [16]byte
	for i := range localKey {
		localKey[i] = byte(i + 1)
	}
	for i := range randA {
		randA[i] = 0xAA
	}
	for i := range randB {
		randB[i] = byte(i)
	}

	got, err := DeriveSessionKey(localKey, randA, randB)
	if err != nil {
		t.Fatal(err)
	}

	var xored [16]byte
	for i := range xored {
		xored[i] = randA[i] ^ randB[i]
	}
	block, err := aes.NewCipher(localKey[:])
	if err != nil {
		t.Fatal(err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, 12)
	if err != nil {
		t.Fatal(err)
	}
	want := gcm.Seal(nil, randA[:12], xored[:], nil)[:16]

	if string(got[:]) != string(want) {
		t.Fatalf("session key mismatch: got %x want %x", got, want)
	}
}

func TestDeriveSessionKeyDeterministic(t *testing.T) {
	var localKey, randA, randB [16]byte
	copy(localKey[:], []byte("0123456789abcdef"))
	copy(randA[:], []byte("AAAAAAAAAAAAAAAA"))
	copy(randB[:], []byte("BBBBBBBBBBBBBBBB"))

	k1, err := DeriveSessionKey(localKey, randA, randB)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := DeriveSessionKey(localKey, randA, randB)
	if err != nil {
		t.Fatal(err)
	}
	if k1 != k2 {
		t.Fatal("DeriveSessionKey is not deterministic")
	}
}

func TestBLEKeyLadderKey12DependsOnKey11(t *testing.T) {
	in := KeyLadderInputs{}
	copy(in.AuthKey[:], []byte("12345678901234567890123456789012"))
	copy(in.UUID[:], []byte("1234567890abcdef"))
	copy(in.ServiceRand[:], []byte("srandsrandsrands"))
	copy(in.PairRand[:], []byte("abcdef"))

	key11 := DeriveBLEKey(Key11, in)
	in.Key11 = key11
	key12 := DeriveBLEKey(Key12, in)

	in2 := in
	copy(in2.Key11[:], []byte("mismatched______"))
	key12Other := DeriveBLEKey(Key12, in2)

	if key12 == key12Other {
		t.Fatal("Key12 did not depend on Key11 input")
	}
}

func TestECBRoundTrip(t *testing.T) {
	var key, pt [16]byte
	copy(key[:], []byte("sixteen byte key"))
	copy(pt[:], []byte("plaintext block!"))

	ct, err := ECBEncryptBlock(key, pt)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ECBDecryptBlock(key, ct)
	if err != nil {
		t.Fatal(err)
	}
	if got != pt {
		t.Fatalf("ECB round trip mismatch: got %x want %x", got, pt)
	}
}

func TestCRC16KnownVector(t *testing.T) {
	// CRC-16/MODBUS (poly 0xA001 reflected, seed 0xFFFF) of ASCII "123456789"
	// is 0x4B37 per the standard check value.
	got := CRC16([]byte("123456789"))
	if got != 0x4B37 {
		t.Fatalf("CRC16 = %04X, want 4B37", got)
	}
}

func TestDeriveActivationKeysDeterministic(t *testing.T) {
	var localKey [16]byte
	copy(localKey[:], []byte("0123456789abcdef"))

	a, err := DeriveActivationKeys(localKey, "dev-1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := DeriveActivationKeys(localKey, "dev-1")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("DeriveActivationKeys is not deterministic for the same input")
	}
	c, err := DeriveActivationKeys(localKey, "dev-2")
	if err != nil {
		t.Fatal(err)
	}
	if a == c {
		t.Fatal("DeriveActivationKeys should vary with device ID")
	}
}
