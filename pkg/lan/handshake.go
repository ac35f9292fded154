package lan

import "github.com/edgelink/lpv35/pkg/frame"

// handleType3 processes the inbound SECURITY_TYPE3 message: randA[16]
// (Spec Section 4.3 key-negotiation FSM step 1).
func (e *Engine) handleType3(s *Session, plaintext []byte) (respType frame.Opcode, respPayload []byte, err error) {
	var randA [16]byte
	if len(plaintext) < 16 {
		return 0, nil, frame.ErrFrameFormat
	}
	copy(randA[:], plaintext[:16])

	randB, hmac, err := s.beginHandshake(e.localKey, randA)
	if err != nil {
		return 0, nil, err
	}

	payload := make([]byte, 0, 48)
	payload = append(payload, randB[:]...)
	payload = append(payload, hmac[:]...)
	return frame.OpSecurityType4, payload, nil
}

// handleType5 processes the inbound SECURITY_TYPE5 message: hmac'[32]
// (Spec Section 4.3 key-negotiation FSM step 2). There is no response on
// success; the session key is now active.
func (e *Engine) handleType5(s *Session, plaintext []byte) error {
	if len(plaintext) < 32 {
		return frame.ErrFrameFormat
	}
	var peerHMAC [32]byte
	copy(peerHMAC[:], plaintext[:32])
	return s.completeHandshake(e.localKey, peerHMAC)
}
