package dispatch

import "errors"

var (
	// ErrNoRoute indicates report() had no BLE/LAN/cloud route to send on
	// and could not even arm the sync worker (no Schema configured).
	ErrNoRoute = errors.New("dispatch: no route available for report")
)
