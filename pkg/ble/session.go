package ble

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/edgelink/lpv35/pkg/cryptoutil"
	"github.com/edgelink/lpv35/pkg/dpschema"
	"github.com/edgelink/lpv35/pkg/workqueue"
	"github.com/pion/logging"
)

// Session is the single BLE GATT session a device maintains with one
// connected peer at a time (Spec Section 3.4).
type Session struct {
	config Config
	schema *dpschema.Schema
	sink   EventSink
	events *workqueue.Queue
	link   Link
	log    logging.LeveledLogger

	channelsMu sync.Mutex
	channels   map[uint16]ChannelHandler

	mu          sync.Mutex
	connected   bool
	isPaired    bool
	sendSN      uint32
	recvSN      uint32
	pairRand    [6]byte
	serviceRand [16]byte
	key11       [16]byte
	pairTimer   *time.Timer
	advertising bool

	recvAssembler *Reassembler
	transparent   *Reassembler

	advertiser Advertiser
	cloud      CloudStatus

	monitorMu      sync.Mutex
	monitorCloseCh chan struct{}
	monitorWG      sync.WaitGroup
}

// NewSession creates an idle (disconnected) BLE session.
func NewSession(config Config, schema *dpschema.Schema, sink EventSink, events *workqueue.Queue, link Link, loggerFactory logging.LoggerFactory) *Session {
	config.applyDefaults()
	s := &Session{
		config:        config,
		schema:        schema,
		sink:          sink,
		events:        events,
		link:          link,
		channels:      make(map[uint16]ChannelHandler),
		recvAssembler: NewReassembler(),
		transparent:   NewReassembler(),
	}
	if loggerFactory != nil {
		s.log = loggerFactory.NewLogger("ble-session")
	}
	return s
}

// RegisterChannel installs a handler for a downlink transparent payload tag
// (Spec Section 4.6, the first two bytes of the reassembled payload).
func (s *Session) RegisterChannel(tag uint16, handler ChannelHandler) {
	s.channelsMu.Lock()
	s.channels[tag] = handler
	s.channelsMu.Unlock()
}

// Connect resets session state for a new GATT connection (Spec Section 4.6
// "Connect") and arms the pair timer.
func (s *Session) Connect() {
	s.mu.Lock()
	s.connected = true
	s.isPaired = false
	s.recvSN = 0
	s.sendSN = 1
	s.recvAssembler.Reset()
	s.transparent.Reset()
	s.armPairTimerLocked()
	s.mu.Unlock()
}

// Disconnect tears down session state (Spec Section 3.4, original
// TAL_BLE_EVT_DISCONNECT handler).
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.connected = false
	s.isPaired = false
	s.pairRand = [6]byte{}
	s.stopPairTimerLocked()
	s.mu.Unlock()

	if s.sink != nil {
		s.notifySink(func() { s.sink.OnDisconnected() })
	}
}

func (s *Session) armPairTimerLocked() {
	s.stopPairTimerLocked()
	s.pairTimer = time.AfterFunc(s.config.PairTimeout, func() {
		if s.log != nil {
			s.log.Warnf("ble session: pair timer expired, disconnecting")
		}
		s.Disconnect()
	})
}

func (s *Session) stopPairTimerLocked() {
	if s.pairTimer != nil {
		s.pairTimer.Stop()
		s.pairTimer = nil
	}
}

func (s *Session) notifySink(fn func()) {
	if s.events != nil {
		s.events.Schedule(nil, fn)
		return
	}
	fn()
}

// nextSendSN returns the monotonic outbound sequence number (Spec Section
// 5: "send_sn is monotonic").
func (s *Session) nextSendSN() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.sendSN
	s.sendSN++
	return v
}

// checkRecvSN enforces strict monotonicity (Spec Section 4.6: "recv_sn must
// be strictly greater than the previous; otherwise disconnect").
func (s *Session) checkRecvSN(sn uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sn <= s.recvSN {
		return false
	}
	s.recvSN = sn
	return true
}

// encryptModeFor selects the outbound encryption mode (Spec Section 4.6
// "Encryption mode selection").
func (s *Session) encryptModeFor(cmd Opcode) EncryptMode {
	bound := s.config.IsBound()
	if cmd == OpQryDevInfoReq {
		if bound {
			return ModeKey14
		}
		return ModeKey11
	}
	if bound {
		return ModeKey15
	}
	return ModeKey12
}

// deriveKey derives the key for mode from this session's cached key-ladder
// material (Section 4.6 key derivation table, original ble_key_generate).
// service_rand is a session-persistent value, not the per-frame CBC IV: it
// starts zeroed and is updated only when the device decrypts an inbound
// KEY11/KEY16 frame, whose IV doubles as service_rand by convention
// (original ble_cryption.c: "iv == rand"). The device's own outbound IV is
// always independently random (original ble_packet_encode's unconditional
// uni_random_bytes) and never feeds key derivation.
func (s *Session) deriveKey(mode EncryptMode) [16]byte {
	in := cryptoutil.KeyLadderInputs{
		AuthKey:  s.config.AuthKey,
		UUID:     s.config.UUID,
		LoginKey: s.config.LoginKey,
		SecKey:   s.config.SecKey,
	}

	s.mu.Lock()
	in.PairRand = s.pairRand
	in.ServiceRand = s.serviceRand
	in.Key11 = s.key11
	s.mu.Unlock()

	var key [16]byte
	switch mode {
	case ModeKey11:
		key = cryptoutil.DeriveBLEKey(cryptoutil.Key11, in)
		s.mu.Lock()
		s.key11 = key
		s.mu.Unlock()
	case ModeKey16:
		key = cryptoutil.DeriveBLEKey(cryptoutil.Key16, in)
	case ModeKey12:
		key = cryptoutil.DeriveBLEKey(cryptoutil.Key12, in)
	case ModeKey14:
		key = cryptoutil.DeriveBLEKey(cryptoutil.Key14, in)
	case ModeKey15:
		key = cryptoutil.DeriveBLEKey(cryptoutil.Key15, in)
	}
	return key
}

// deriveOutboundKey derives the key for an outbound frame under mode and
// generates an independent random CBC IV (Spec Section 4.6, original
// ble_packet_encode: IV is always freshly random regardless of mode).
func (s *Session) deriveOutboundKey(mode EncryptMode) (key [16]byte, iv [16]byte, err error) {
	if mode == ModeNone {
		return key, iv, nil
	}
	if _, err = rand.Read(iv[:]); err != nil {
		return key, iv, err
	}
	return s.deriveKey(mode), iv, nil
}

// observeInboundServiceRand adopts iv as this session's cached service_rand
// when mode is KEY11/KEY16 (original ble_cryption.c tuya_ble_decryption:
// "iv == rand"), then derives the key for mode.
func (s *Session) observeInboundServiceRand(mode EncryptMode, iv [16]byte) [16]byte {
	if mode == ModeKey11 || mode == ModeKey16 {
		s.mu.Lock()
		s.serviceRand = iv
		s.mu.Unlock()
	}
	return s.deriveKey(mode)
}

// Send encrypts and fragments one outbound frame, notifying the link once
// per GATT sub-packet.
func (s *Session) Send(cmd Opcode, ackSN uint32, data []byte) error {
	mode := s.encryptModeFor(cmd)
	key, iv, err := s.deriveOutboundKey(mode)
	if err != nil {
		return err
	}

	f := Frame{SN: s.nextSendSN(), AckSN: ackSN, CMD: uint16(cmd), Data: data}
	envelope, err := Encrypt(mode, key, iv, f)
	if err != nil {
		return err
	}

	for _, pkt := range Fragment(4, uint8(f.SN&0x0f), envelope, s.config.PacketLen) {
		if err := s.link.Notify(pkt); err != nil {
			return err
		}
	}
	return nil
}

// Paired reports whether this session has completed PAIR_REQ, consulted by
// the dispatch façade's report-route preference (Spec Section 4.7: "prefers
// BLE when paired").
func (s *Session) Paired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected && s.isPaired
}

// Report pushes a dps JSON report unsolicited to the paired peer (Spec
// Section 4.7 report API, original FRM_DP_STAT_REPORT_V4).
func (s *Session) Report(dpsJSON []byte) error {
	return s.Send(OpDPStatReportV4, 0, dpsJSON)
}

// HandleWrite feeds one raw GATT write sub-packet (app -> dev).
func (s *Session) HandleWrite(raw []byte) error {
	envelope, done, err := s.recvAssembler.Write(raw)
	if err != nil {
		return err
	}
	if !done {
		return nil
	}
	return s.handleEnvelope(envelope)
}

func (s *Session) handleEnvelope(envelope []byte) error {
	if len(envelope) < 1 {
		return ErrFrameTooShort
	}
	mode := EncryptMode(envelope[0])

	var key [16]byte
	if mode != ModeNone {
		if len(envelope) < 17 {
			return ErrFrameTooShort
		}
		var iv [16]byte
		copy(iv[:], envelope[1:17])
		key = s.observeInboundServiceRand(mode, iv)
	}

	f, _, _, err := Decrypt(key, envelope)
	if err != nil {
		if s.log != nil {
			s.log.Debugf("ble session: decode error: %v", err)
		}
		return nil // FrameFormat/FrameAuth: drop, do not close (Spec Section 7)
	}

	if !s.checkRecvSN(f.SN) {
		s.Disconnect()
		return ErrSeqReplay
	}

	return s.dispatchOpcode(f)
}
