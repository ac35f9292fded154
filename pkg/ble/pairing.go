package ble

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/edgelink/lpv35/pkg/cryptoutil"
)

// devInfoDescriptorLen mirrors the original's fixed 128-byte allocation for
// the QRY_DEV_INFO_REQ response (Spec Section 4.6).
const devInfoDescriptorLen = 128

// dispatchOpcode runs the opcode handlers of Spec Section 4.6 ("structured
// identically to LAN... on this framing").
func (s *Session) dispatchOpcode(f Frame) error {
	switch Opcode(f.CMD) {
	case OpQryDevInfoReq:
		return s.handleDevInfoReq(f)

	case OpPairReq:
		return s.handlePairReq(f)

	case OpUnbondingReq, OpDeviceReset:
		return s.handleUnbind(f)

	case OpStateQuery:
		return s.handleStateQuery(f)

	case OpDPCmdSendV4:
		return s.handleDPCmd(f)

	case OpDownlinkTransparentReq, OpDownlinkTransparentSpec:
		return s.handleDownlinkTransparent(f)

	default:
		if s.log != nil {
			s.log.Tracef("ble session: dropping opcode 0x%04x", f.CMD)
		}
		return nil
	}
}

// handleDevInfoReq parses the 2-byte requested pkg_len, then responds with
// the 128-byte device-info descriptor (Spec Section 4.6 pairing FSM step 1,
// original ble_dev_info_req/ble_dev_info_make).
func (s *Session) handleDevInfoReq(f Frame) error {
	if len(f.Data) >= 2 {
		pkgLen := int(binary.BigEndian.Uint16(f.Data[:2]))
		s.mu.Lock()
		s.config.PacketLen = ClampPacketLen(pkgLen)
		s.mu.Unlock()
	}

	var pairRand [6]byte
	if _, err := rand.Read(pairRand[:]); err != nil {
		return err
	}
	s.mu.Lock()
	s.pairRand = pairRand
	s.mu.Unlock()

	bound := s.config.IsBound()
	buf := make([]byte, devInfoDescriptorLen)
	buf[2] = protocolVersionHigh
	buf[3] = protocolVersionLow
	buf[4] = (1 << 0) | (1 << 2)
	if bound {
		buf[5] = 1
	}
	copy(buf[6:12], pairRand[:])

	s.mu.Lock()
	serviceRand := s.serviceRand
	s.mu.Unlock()
	regKey, err := cryptoutil.RegisterKey(s.config.AuthKey, serviceRand)
	if err != nil {
		return err
	}
	copy(buf[14:30], regKey[:])

	copy(buf[96:112], s.config.ProductKey)

	return s.Send(OpQryDevInfoReq, f.SN, buf)
}

// handlePairReq compares the 16-byte id, sets is_paired, and pushes an
// unsolicited net-status event on success (Spec Section 4.6 pairing FSM
// step 2, original ble_pair_req).
func (s *Session) handlePairReq(f Frame) error {
	var status pairStatus
	matched := len(f.Data) >= 16 && bytesEqual(f.Data[:16], s.config.UUID[:])
	bound := s.config.IsBound()

	s.mu.Lock()
	s.stopPairTimerLocked()
	if matched {
		s.isPaired = true
	}
	s.mu.Unlock()

	if matched {
		if bound {
			status = pairStatusBound
		} else {
			status = pairStatusUnbound
		}
	} else {
		status = pairStatusMismatch
	}

	if err := s.Send(OpPairReq, f.SN, []byte{byte(status)}); err != nil {
		return err
	}

	if !matched {
		return ErrUUIDMismatch
	}

	if s.sink != nil {
		s.notifySink(func() { s.sink.OnPaired(bound) })
	}

	netstat := s.config.NetStatus()
	return s.Send(OpRptNetStatReq, 0, []byte{netstat})
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// handleUnbind responds with status 1 and schedules an unbind event before
// the caller disconnects (Spec Section 4.6: FRM_UNBONDING_REQ/DEVICE_RESET).
func (s *Session) handleUnbind(f Frame) error {
	if err := s.Send(f.opcode(), f.SN, []byte{1}); err != nil {
		return err
	}
	if s.sink != nil {
		s.notifySink(func() { s.sink.OnUnbindRequested() })
	}
	return nil
}

// handleStateQuery builds an OBJ-DP report and responds with it (Spec
// Section 4.6: FRM_STATE_QUERY).
func (s *Session) handleStateQuery(f Frame) error {
	body, err := s.schema.Query()
	if err != nil {
		return s.Send(OpStateQuery, f.SN, []byte(err.Error()))
	}
	return s.Send(OpStateQuery, f.SN, body)
}

// handleDPCmd parses the TLV DP-write payload and dispatches it (Spec
// Section 4.6: FRM_DP_CMD_SEND_V4, 6.4).
func (s *Session) handleDPCmd(f Frame) error {
	_, _, body, err := DecodeDPCmd(f.Data)
	var returnCode byte
	if err != nil {
		returnCode = 1
	} else {
		obj, raws, derr := s.schema.Dispatch(body)
		if derr != nil {
			returnCode = 1
		} else if s.sink != nil {
			if obj != nil {
				s.notifySink(func() { s.sink.OnObjEvent(obj) })
			}
			for _, r := range raws {
				r := r
				s.notifySink(func() { s.sink.OnRawEvent(r) })
			}
		}
	}
	return s.Send(OpDPCmdSendV4, f.SN, []byte{returnCode})
}

func (f Frame) opcode() Opcode { return Opcode(f.CMD) }
