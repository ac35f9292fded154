package main

import "sync"

// deviceState holds the example binary's mutable runtime state: activation
// status and a stand-in for cloud (MQTT) connectivity, consulted by the BLE
// advertising monitor (ble.CloudStatus) and reported in the LAN beacon.
type deviceState struct {
	mu             sync.Mutex
	bound          bool
	cloudConnected bool
	netStat        byte
}

func newDeviceState(bound bool) *deviceState {
	return &deviceState{bound: bound, netStat: 0}
}

func (d *deviceState) isBound() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bound
}

func (d *deviceState) setBound(bound bool) {
	d.mu.Lock()
	d.bound = bound
	d.mu.Unlock()
}

// netStatus reports the network connectivity status byte (Spec Section 4.6:
// pushed unsolicited after PAIR_REQ). 0 = unconfigured, 3 = cloud-connected,
// matching the original source's NET_STATUS enumeration ordering.
func (d *deviceState) netStatus() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cloudConnected {
		return 3
	}
	return d.netStat
}

// Connected implements ble.CloudStatus.
func (d *deviceState) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cloudConnected
}

func (d *deviceState) setCloudConnected(connected bool) {
	d.mu.Lock()
	d.cloudConnected = connected
	d.mu.Unlock()
}
