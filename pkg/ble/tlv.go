package ble

import (
	"encoding/binary"
	"encoding/json"
	"strconv"
)

// dpType is the BLE DP TLV record's type tag (Spec Section 6.4).
type dpType uint8

const (
	dpTypeRaw dpType = iota
	dpTypeBool
	dpTypeInt
	dpTypeString
	dpTypeEnum
	dpTypeBitmap
)

// DecodeDPCmd parses a FRM_DP_CMD_SEND_V4 payload (Spec Section 6.4):
// a 5-byte header VERSION(1)|SN(4), then records
// DP_ID(1)|DP_TYPE(1)|LEN(2,BE)|VALUE(LEN). It re-expresses the decoded
// records as a `{"dps":{...}}` JSON body so the result can be handed
// straight to (*dpschema.Schema).Dispatch, the same decode path LAN uses.
func DecodeDPCmd(payload []byte) (version uint8, sn uint32, dpsJSON []byte, err error) {
	if len(payload) < 5 {
		return 0, 0, nil, ErrFrameTooShort
	}
	version = payload[0]
	sn = binary.BigEndian.Uint32(payload[1:5])

	dps := make(map[string]any)
	off := 5
	for off < len(payload) {
		if off+4 > len(payload) {
			return 0, 0, nil, ErrFrameTooShort
		}
		id := payload[off]
		typ := dpType(payload[off+1])
		length := int(binary.BigEndian.Uint16(payload[off+2 : off+4]))
		off += 4
		if off+length > len(payload) {
			return 0, 0, nil, ErrFrameTooShort
		}
		value := payload[off : off+length]
		off += length

		key := strconv.Itoa(int(id))
		switch typ {
		case dpTypeRaw:
			dps[key] = rawValueJSON(value)
		case dpTypeBool:
			dps[key] = len(value) > 0 && value[0] != 0
		case dpTypeInt:
			dps[key] = decodeBEInt(value)
		case dpTypeString:
			dps[key] = string(value)
		case dpTypeEnum:
			if len(value) > 0 {
				dps[key] = int(value[0])
			} else {
				dps[key] = 0
			}
		case dpTypeBitmap:
			dps[key] = decodeBEInt(value)
		default:
			return 0, 0, nil, ErrFrameTooShort
		}
	}

	body, err := json.Marshal(map[string]any{"dps": dps})
	return version, sn, body, err
}

func decodeBEInt(value []byte) int64 {
	var v uint64
	for _, b := range value {
		v = v<<8 | uint64(b)
	}
	return int64(v)
}

// rawValueJSON produces the base64-string JSON value dpschema.Dispatch
// expects for RAW dps, via a round-trip through the stdlib JSON encoder so
// the escaping/base64 alphabet exactly match encoding/json's own.
func rawValueJSON(data []byte) json.RawMessage {
	encoded, _ := json.Marshal(data) // []byte marshals as standard base64
	return encoded
}
