package main

import (
	"encoding/hex"
	"flag"
	"fmt"
)

// Options holds the example binary's CLI flags, in the shape of the
// teacher's examples/common/flags.go (stdlib flag, no framework).
type Options struct {
	DeviceID    string
	ProductKey  string
	LANAddr     string
	LocalKeyHex string
	AuthKeyHex  string
	Bound       bool
	SchemaPath  string
}

// DefaultOptions returns Options with sensible defaults for a first run.
func DefaultOptions() Options {
	return Options{
		DeviceID:    "lpv35demo0000001",
		ProductKey:  "demoproduct",
		LANAddr:     ":6668",
		LocalKeyHex: "30313233343536373839616263646566", // "0123456789abcdef"
		AuthKeyHex:  "3031323334353637383961626364656630313233343536373839616263646566",
		Bound:       false,
		SchemaPath:  "",
	}
}

// ParseFlags parses the example binary's CLI flags.
func ParseFlags() Options {
	d := DefaultOptions()
	o := Options{}

	flag.StringVar(&o.DeviceID, "id", d.DeviceID, "device id (gwId)")
	flag.StringVar(&o.ProductKey, "product", d.ProductKey, "product key")
	flag.StringVar(&o.LANAddr, "lan-addr", d.LANAddr, "LAN session TCP listen address")
	flag.StringVar(&o.LocalKeyHex, "local-key", d.LocalKeyHex, "hex-encoded 16-byte LAN/BLE local_key")
	flag.StringVar(&o.AuthKeyHex, "auth-key", d.AuthKeyHex, "hex-encoded 32-byte BLE auth_key")
	flag.BoolVar(&o.Bound, "bound", d.Bound, "start already bound/activated")
	flag.StringVar(&o.SchemaPath, "schema", d.SchemaPath, "path to a DP schema JSON document (default: built-in demo schema)")
	flag.Parse()

	return o
}

// decodeHexKey decodes hexStr into out, which fixes the expected key length.
func decodeHexKey(hexStr string, out []byte) error {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	if len(raw) != len(out) {
		return fmt.Errorf("expected %d bytes, got %d", len(out), len(raw))
	}
	copy(out, raw)
	return nil
}

// deviceUUID derives a 16-byte BLE uuid from the device id by truncating or
// zero-padding it (Spec Section 4.6 BLE_ID_LEN=16); real devices carry a
// cloud-issued uuid, this is a bootstrap stand-in for the example binary.
func deviceUUID(deviceID string) [16]byte {
	var uuid [16]byte
	copy(uuid[:], deviceID)
	return uuid
}
