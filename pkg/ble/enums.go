package ble

// Opcode is the BLE frame CMD field (Spec Section 4.6, 6.3).
type Opcode uint16

const (
	OpQryDevInfoReq           Opcode = 0x0000
	OpPairReq                 Opcode = 0x0001
	OpStateQuery              Opcode = 0x0003
	OpUnbondingReq            Opcode = 0x0005
	OpDeviceReset             Opcode = 0x0006
	OpDPCmdSendV4             Opcode = 0x0027
	OpRptNetStatReq           Opcode = 0x001e
	OpDownlinkTransparentReq  Opcode = 0x801b
	OpDownlinkTransparentSpec Opcode = 0x801e
	OpDPStatReportV4          Opcode = 0x8006
)

// protocolVersionHigh/Low are the bytes reported in the device-info
// response (Spec Section 4.6, original TUYA_BLE_PROTOCOL_VERSION 4.4).
const (
	protocolVersionHigh = 0x04
	protocolVersionLow  = 0x04
)

// pairTimeoutSeconds is how long (in seconds) the device waits for PAIR_REQ after a GATT
// connect before disconnecting (Spec Section 3.4, original
// BLE_CONN_MONITOR_TIME).
const pairTimeoutSeconds = 30

// monitorCycleSeconds is the advertising-state re-evaluation period (Spec
// Section 4.6 monitor loop).
const monitorCycleSeconds = 3

// pairStatus is the single-byte result of a PAIR_REQ.
type pairStatus uint8

const (
	pairStatusUnbound  pairStatus = 0
	pairStatusMismatch pairStatus = 1
	pairStatusBound    pairStatus = 2
)
