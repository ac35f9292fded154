package ble

import "errors"

// Fragmenter, session, and pairing errors (Spec Section 7).
var (
	// ErrTrsmitrOutOfOrder indicates a sub-packet number did not advance by
	// exactly one from the previous sub-packet (Spec Section 4.5).
	ErrTrsmitrOutOfOrder = errors.New("ble: sub-packet out of order")

	// ErrTrsmitrTooLarge indicates a reassembled frame would exceed the
	// encoded total_length field's sane range.
	ErrTrsmitrTooLarge = errors.New("ble: sub-packet total length too large")

	// ErrFrameTooShort indicates a BLE frame envelope shorter than its
	// fixed header.
	ErrFrameTooShort = errors.New("ble: frame shorter than fixed header")

	// ErrCRCMismatch indicates the BLE frame's CRC16 trailer did not match.
	ErrCRCMismatch = errors.New("ble: crc16 mismatch")

	// ErrSeqReplay indicates recv_sn did not strictly increase (Spec
	// Section 4.6: "recv_sn must be strictly greater than the previous").
	ErrSeqReplay = errors.New("ble: sn replay")

	// ErrNotPaired indicates an operation requiring pairing was attempted
	// before PAIR_REQ completed.
	ErrNotPaired = errors.New("ble: not paired")

	// ErrUUIDMismatch indicates PAIR_REQ's id did not match this device's.
	ErrUUIDMismatch = errors.New("ble: uuid mismatch on pair request")

	// ErrUnknownChannel indicates a downlink transparent payload's 2-byte
	// channel tag has no registered handler.
	ErrUnknownChannel = errors.New("ble: unknown transparent channel")
)
