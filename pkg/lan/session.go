package lan

import (
	"crypto/rand"
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/edgelink/lpv35/pkg/cryptoutil"
	"github.com/edgelink/lpv35/pkg/frame"
)

// Session is one accepted TCP connection and its cryptographic and
// sequencing state (Spec Section 3.3).
type Session struct {
	conn net.Conn
	id   string

	mu               sync.Mutex
	seqIn            uint32
	seqOut           uint32
	randA            [16]byte
	randB            [16]byte
	hmac             [32]byte
	sessionKey       [16]byte
	hasSessionKey    bool
	lastActivity     time.Time
	created          time.Time
	fault            bool
	noKeyFrameCount  int
	recvBuf          []byte
}

func newSession(conn net.Conn) (*Session, error) {
	var seedBuf [2]byte
	if _, err := rand.Read(seedBuf[:]); err != nil {
		return nil, err
	}
	now := time.Now()
	return &Session{
		conn:         conn,
		id:           conn.RemoteAddr().String(),
		seqOut:       uint32(binary.BigEndian.Uint16(seedBuf[:])),
		lastActivity: now,
		created:      now,
		recvBuf:      make([]byte, 0, 512),
	}, nil
}

// ID returns the remote address identifying this session.
func (s *Session) ID() string { return s.id }

// HasSessionKey reports whether the TYPE3/4/5 handshake completed.
func (s *Session) HasSessionKey() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasSessionKey
}

// Fault reports whether this session has been marked faulty by a prior
// send/recv error (Spec Section 7 Transport).
func (s *Session) Fault() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault
}

func (s *Session) markFault() {
	s.mu.Lock()
	s.fault = true
	s.mu.Unlock()
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

func (s *Session) age() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.created)
}

// nextSeqOut atomically increments and returns the outbound sequence
// counter (Spec Section 5: "outbound frames increment seq_out atomically
// per serialize call").
func (s *Session) nextSeqOut() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.seqOut
	s.seqOut++
	return v
}

// checkSequence enforces strict monotonicity (Spec Section 3.3, 8 invariant
// 4). It reports replay for a non-advancing SEQUENCE, and shouldClose when
// seq_in minus that SEQUENCE is at least threshold; an advancing SEQUENCE
// becomes the new seq_in.
func (s *Session) checkSequence(seq uint32, threshold uint32) (replay bool, shouldClose bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq > s.seqIn {
		s.seqIn = seq
		return false, false
	}
	gap := s.seqIn - seq
	return true, gap >= threshold
}

// beginHandshake records randA and the freshly generated randB + hmac for
// the TYPE3->TYPE4 step (Spec Section 4.3 key-negotiation FSM step 1).
func (s *Session) beginHandshake(localKey [16]byte, randA [16]byte) (randB [16]byte, hmac [32]byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasSessionKey {
		return randB, hmac, ErrReKeyNotAllowed
	}

	if _, err = rand.Read(randB[:]); err != nil {
		return randB, hmac, err
	}
	hmac = sha256HMAC(localKey, randA)

	s.randA = randA
	s.randB = randB
	copy(s.hmac[:], hmac[:])
	return randB, hmac, nil
}

// completeHandshake verifies the TYPE5 hmac and derives the session key
// (Spec Section 4.3 step 2, 8 invariant 5).
func (s *Session) completeHandshake(localKey [16]byte, peerHMAC [32]byte) error {
	s.mu.Lock()
	randA := s.randA
	randB := s.randB
	s.mu.Unlock()

	want := sha256HMAC(localKey, randB)
	if want != peerHMAC {
		s.markFault()
		return ErrHMACMismatch
	}

	key, err := cryptoutil.DeriveSessionKey(localKey, randA, randB)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.sessionKey = key
	s.hasSessionKey = true
	s.mu.Unlock()
	return nil
}

func (s *Session) activeKey(localKey [16]byte, typ frame.Opcode) ([16]byte, bool) {
	if typ.IsSecurityHandshake() {
		return localKey, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasSessionKey {
		return s.sessionKey, true
	}
	return [16]byte{}, false
}

// accountNoKeyFrame tracks the Section 9 allow_no_session_key_num slack
// window and reports whether it has been exhausted.
func (s *Session) accountNoKeyFrame(allowed int) (exceeded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noKeyFrameCount++
	return s.noKeyFrameCount > allowed
}

func sha256HMAC(key [16]byte, data [16]byte) [32]byte {
	sum := cryptoutil.HMACSHA256(key[:], data[:])
	var out [32]byte
	copy(out[:], sum)
	return out
}
