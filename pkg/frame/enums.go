package frame

// Opcode identifies the LPv35 frame TYPE field (Spec Section 6.1).
// Values are big-endian on the wire; the Go type carries the decoded value.
type Opcode uint32

const (
	// OpSecurityType3 carries randA[16] from app to device.
	OpSecurityType3 Opcode = 0x03
	// OpSecurityType4 carries randB[16] || hmac[32] from device to app.
	OpSecurityType4 Opcode = 0x04
	// OpSecurityType5 carries hmac[32] from app to device, completing negotiation.
	OpSecurityType5 Opcode = 0x05
	// OpTPCmd is a DP write command from app to device.
	OpTPCmd Opcode = 0x07
	// OpTPStatReport is an unsolicited DP report from device to app.
	OpTPStatReport Opcode = 0x08
	// OpHeartbeat is the bidirectional keepalive.
	OpHeartbeat Opcode = 0x09
	// OpQueryStat requests a full DP dump from device.
	OpQueryStat Opcode = 0x0a
	// OpTPNewCmd is an alias of OpTPCmd.
	OpTPNewCmd Opcode = 0x0d
	// OpQueryStatNew is an alias of OpQueryStat.
	OpQueryStatNew Opcode = 0x10
	// OpEncryption wraps the UDP discovery beacon body.
	OpEncryption Opcode = 0x13
	// OpAppUDPBroadcast is an app's unicast discovery probe.
	OpAppUDPBroadcast Opcode = 0x25
)

// String returns a mnemonic for known opcodes, or a hex fallback.
func (o Opcode) String() string {
	switch o {
	case OpSecurityType3:
		return "SECURITY_TYPE3"
	case OpSecurityType4:
		return "SECURITY_TYPE4"
	case OpSecurityType5:
		return "SECURITY_TYPE5"
	case OpTPCmd:
		return "TP_CMD"
	case OpTPStatReport:
		return "TP_STAT_REPORT"
	case OpHeartbeat:
		return "TP_HB"
	case OpQueryStat:
		return "QUERY_STAT"
	case OpTPNewCmd:
		return "TP_NEW_CMD"
	case OpQueryStatNew:
		return "QUERY_STAT_NEW"
	case OpEncryption:
		return "ENCRYPTION"
	case OpAppUDPBroadcast:
		return "APP_UDP_BOARDCAST"
	default:
		return "UNKNOWN"
	}
}

// IsSecurityHandshake reports whether opcode belongs to the TYPE3/4/5
// key-negotiation exchange, which always uses local_key regardless of
// whether a session key has already been established (Spec Section 3.3).
func (o Opcode) IsSecurityHandshake() bool {
	return o == OpSecurityType3 || o == OpSecurityType4 || o == OpSecurityType5
}
