package ble

import "encoding/binary"

// Downlink-transparent sub-packet ack status codes (Spec Section 6.3 S6),
// grounded on original_source/.../ble/ble_channel.c's SUBPACKET_RECV_*
// constants.
const (
	transparentAckAllDone      uint8 = 0
	transparentAckOneAndNext   uint8 = 1
	transparentAckErrorRestart uint8 = 2
)

// transparentAck is the 11-byte status record the device sends after every
// downlink-transparent sub-packet (Spec Section 6.3 S6: "each sub-packet
// acked with an 11-byte status record"). Field set is grounded on
// original_source/.../ble/ble_channel.c's packed ble_channel_ack_t (flag,
// status, curSubpacketNo, cursubpacketLen, receivedLen, totalLen), sized
// down from that struct's 32-bit lengths to 16-bit ones plus a reserved
// byte to land on the wire size the spec pins down.
type transparentAck struct {
	Flag            uint8
	Status          uint8
	CurSubpacketNo  uint16
	CurSubpacketLen uint16
	ReceivedLen     uint16
	TotalLen        uint16
	Reserved        uint8
}

func (a transparentAck) encode() []byte {
	buf := make([]byte, 11)
	buf[0] = a.Flag
	buf[1] = a.Status
	binary.BigEndian.PutUint16(buf[2:4], a.CurSubpacketNo)
	binary.BigEndian.PutUint16(buf[4:6], a.CurSubpacketLen)
	binary.BigEndian.PutUint16(buf[6:8], a.ReceivedLen)
	binary.BigEndian.PutUint16(buf[8:10], a.TotalLen)
	buf[10] = a.Reserved
	return buf
}

// handleDownlinkTransparent reassembles a FRM_DOWNLINK_TRANSPARENT_REQ/SPEC_REQ
// frame's payload through a dedicated Reassembler (distinct from the C5
// sub-packet fragmenter: this one fragments at the frame-data level, not the
// GATT-write level) and dispatches the completed payload to the channel
// handler keyed by its first two bytes (Spec Section 4.6: "dispatches to a
// registered channel callback keyed by the first two bytes of the payload").
func (s *Session) handleDownlinkTransparent(f Frame) error {
	payload, done, err := s.transparent.Write(f.Data)
	if err != nil {
		ack := transparentAck{Flag: 1, Status: transparentAckErrorRestart}
		return s.Send(f.opcode(), f.SN, ack.encode())
	}

	ack := transparentAck{
		Flag:            1,
		CurSubpacketNo:  uint16(s.transparent.SubpacketNo()),
		CurSubpacketLen: uint16(len(f.Data)),
		ReceivedLen:     uint16(s.transparent.Received()),
		TotalLen:        uint16(s.transparent.Total()),
	}
	if done {
		ack.Status = transparentAckAllDone
	} else {
		ack.Status = transparentAckOneAndNext
	}
	if err := s.Send(f.opcode(), f.SN, ack.encode()); err != nil {
		return err
	}
	if !done {
		return nil
	}
	return s.dispatchTransparentPayload(payload)
}

func (s *Session) dispatchTransparentPayload(payload []byte) error {
	if len(payload) < 2 {
		return ErrFrameTooShort
	}
	tag := binary.BigEndian.Uint16(payload[:2])
	body := payload[2:]

	s.channelsMu.Lock()
	handler := s.channels[tag]
	s.channelsMu.Unlock()

	if handler == nil {
		if s.log != nil {
			s.log.Warnf("ble session: no channel registered for transparent tag 0x%04x", tag)
		}
		return ErrUnknownChannel
	}

	s.notifySink(func() { handler(body) })
	return nil
}
