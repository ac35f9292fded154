// Package lan implements the LAN session engine: a TCP listener accepting
// paired-app sessions, the LPv35 key-negotiation handshake, sequence
// enforcement, heartbeat housekeeping, and DP dispatch (Spec Section 3.3,
// 4.3), plus the UDP discovery beacon (Spec Section 4.4).
package lan

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"sync"
	"time"

	"github.com/edgelink/lpv35/pkg/dpschema"
	"github.com/edgelink/lpv35/pkg/frame"
	"github.com/edgelink/lpv35/pkg/workqueue"
	"github.com/pion/logging"
)

// commandEnvelope is the JSON shape carried by TP_CMD/TP_NEW_CMD (Spec
// Section 4.3 opcode handlers).
type commandEnvelope struct {
	Data struct {
		Dps   json.RawMessage `json:"dps"`
		DevID string          `json:"devId"`
	} `json:"data"`
}

// Engine is the LAN TCP session engine.
type Engine struct {
	config   Config
	localKey [16]byte
	schema   *dpschema.Schema
	sink     EventSink
	events   *workqueue.Queue
	log      logging.LeveledLogger

	listener net.Listener
	closeCh  chan struct{}
	wg       sync.WaitGroup

	sessionsMu sync.Mutex
	sessions   map[string]*Session

	stateMu sync.Mutex
	started bool
	closed  bool
}

// NewEngine creates a LAN engine bound to schema, using localKey for the
// handshake and session-key derivation. Decoded events are delivered to
// sink via the given work queue (Spec Section 5: events run on the
// work-queue thread, never the I/O thread).
func NewEngine(config Config, localKey [16]byte, schema *dpschema.Schema, sink EventSink, events *workqueue.Queue, loggerFactory logging.LoggerFactory) (*Engine, error) {
	config.applyDefaults()

	e := &Engine{
		config:   config,
		localKey: localKey,
		schema:   schema,
		sink:     sink,
		events:   events,
		closeCh:  make(chan struct{}),
		sessions: make(map[string]*Session),
	}
	if loggerFactory != nil {
		e.log = loggerFactory.NewLogger("lan-engine")
	}
	return e, nil
}

// Start begins accepting connections and running housekeeping.
func (e *Engine) Start() error {
	e.stateMu.Lock()
	if e.closed {
		e.stateMu.Unlock()
		return ErrClosed
	}
	if e.started {
		e.stateMu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.stateMu.Unlock()

	listener, err := net.Listen("tcp", e.config.TCPAddr)
	if err != nil {
		return err
	}
	e.listener = listener

	if e.log != nil {
		e.log.Infof("lan engine listening on %s", listener.Addr())
	}

	e.wg.Add(2)
	go e.acceptLoop()
	go e.housekeepingLoop()
	return nil
}

// Stop closes all sessions and the listener.
func (e *Engine) Stop() error {
	e.stateMu.Lock()
	if e.closed {
		e.stateMu.Unlock()
		return ErrClosed
	}
	e.closed = true
	e.stateMu.Unlock()

	close(e.closeCh)
	if e.listener != nil {
		e.listener.Close()
	}

	e.sessionsMu.Lock()
	for _, s := range e.sessions {
		s.conn.Close()
	}
	e.sessions = make(map[string]*Session)
	e.sessionsMu.Unlock()

	e.wg.Wait()
	return nil
}

func (e *Engine) acceptLoop() {
	defer e.wg.Done()

	for {
		conn, err := e.listener.Accept()
		if err != nil {
			select {
			case <-e.closeCh:
				return
			default:
				continue
			}
		}

		e.sessionsMu.Lock()
		full := len(e.sessions) >= e.config.ClientLimit
		e.sessionsMu.Unlock()
		if full {
			if e.log != nil {
				e.log.Warnf("lan engine: rejecting connection from %s: %v", conn.RemoteAddr(), ErrSessionFull)
			}
			conn.Close()
			continue
		}

		sess, err := newSession(conn)
		if err != nil {
			conn.Close()
			continue
		}

		e.sessionsMu.Lock()
		e.sessions[sess.id] = sess
		e.sessionsMu.Unlock()

		e.wg.Add(1)
		go e.receiveLoop(sess)
	}
}

func (e *Engine) removeSession(sess *Session) {
	e.sessionsMu.Lock()
	delete(e.sessions, sess.id)
	e.sessionsMu.Unlock()

	sess.conn.Close()

	if e.sink != nil && e.events != nil {
		_ = e.events.Schedule(nil, func() { e.sink.OnSessionClosed(sess.id) })
	}
}

// receiveLoop reads bytes for one session, scans for frames, and dispatches
// them (Spec Section 4.3 "Receive pipeline").
func (e *Engine) receiveLoop(sess *Session) {
	defer e.wg.Done()
	defer e.removeSession(sess)

	buf := make([]byte, 0, e.config.ReceiveBufferInitial)
	chunk := make([]byte, 4096)

	for {
		select {
		case <-e.closeCh:
			return
		default:
		}

		n, err := sess.conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			if err != io.EOF && e.log != nil {
				e.log.Debugf("lan session %s: read error: %v", sess.id, err)
			}
			return
		}

		for {
			idx := frame.IndexHead(buf)
			if idx < 0 {
				if len(buf) > frame.HeadSize {
					buf = buf[len(buf)-frame.HeadSize+1:]
				}
				break
			}
			if idx > 0 {
				buf = buf[idx:]
			}

			total, ok := frame.PeekTotalSize(buf)
			if !ok {
				break
			}
			if total > e.config.MaxFrameLen {
				if e.log != nil {
					e.log.Warnf("lan session %s: frame length %d exceeds max %d", sess.id, total, e.config.MaxFrameLen)
				}
				sess.markFault()
				return
			}
			if len(buf) < total {
				break // wait for more bytes (Spec: bounded retry for stragglers)
			}

			raw := buf[:total]
			buf = buf[total:]

			if e.handleRaw(sess, raw) != nil {
				return
			}
		}
	}
}

// handleRaw processes one complete wire-sized frame buffer. A non-nil
// return means the session must close.
func (e *Engine) handleRaw(sess *Session, raw []byte) error {
	seq, typ, ok := peekSeqType(raw)
	if !ok {
		return nil // malformed enough to not even have a fixed head; drop
	}

	replay, shouldClose := sess.checkSequence(seq, e.config.SeqErrThreshold)
	if replay {
		if shouldClose {
			return ErrSequenceReplay
		}
		return nil // drop and resync
	}

	key, haveKey := sess.activeKey(e.localKey, typ)
	if !haveKey {
		if sess.accountNoKeyFrame(e.config.AllowNoSessionKeyNum) {
			return ErrSessionKeyMissing
		}
		return nil
	}

	f, err := frame.Parse(key, raw)
	if err != nil {
		if e.log != nil {
			e.log.Debugf("lan session %s: parse error: %v", sess.id, err)
		}
		return nil // FrameFormat/FrameAuth: drop, do not close (Spec Section 7)
	}
	sess.touch()

	if f.Type == frame.OpHeartbeat {
		resp, err := frame.Serialize(key, sess.nextSeqOut(), frame.OpHeartbeat, nil)
		if err == nil {
			e.write(sess, resp)
		}
		return nil
	}

	return e.dispatchOpcode(sess, f)
}

func peekSeqType(raw []byte) (seq uint32, typ frame.Opcode, ok bool) {
	if len(raw) < frame.HeadSize+frame.FixedHeadSize {
		return 0, 0, false
	}
	fixed := raw[frame.HeadSize : frame.HeadSize+frame.FixedHeadSize]
	seq = binary.BigEndian.Uint32(fixed[2:6])
	typ = frame.Opcode(binary.BigEndian.Uint32(fixed[6:10]))
	return seq, typ, true
}

// dispatchOpcode runs the opcode handlers of Spec Section 4.3.3.
func (e *Engine) dispatchOpcode(sess *Session, f *frame.Frame) error {
	switch f.Type {
	case frame.OpSecurityType3:
		respType, payload, err := e.handleType3(sess, f.Plaintext)
		if err != nil {
			return err
		}
		resp, err := frame.Serialize(e.localKey, sess.nextSeqOut(), respType, payload)
		if err == nil {
			e.write(sess, resp)
		}
		return nil

	case frame.OpSecurityType5:
		return e.handleType5(sess, f.Plaintext)

	case frame.OpTPCmd, frame.OpTPNewCmd:
		e.handleCommand(sess, f)
		return nil

	case frame.OpQueryStat, frame.OpQueryStatNew:
		e.handleQuery(sess, f)
		return nil

	default:
		if e.log != nil {
			e.log.Tracef("lan session %s: dropping opcode %s", sess.id, f.Type)
		}
		return nil
	}
}

func (e *Engine) handleCommand(sess *Session, f *frame.Frame) {
	_, payload := f.ReturnCode()

	var env commandEnvelope
	returnCode := uint32(0)
	var respPayload []byte

	if err := json.Unmarshal(payload, &env); err != nil || env.Data.Dps == nil {
		returnCode = 1
		respPayload = []byte("data format error")
	} else {
		body, _ := json.Marshal(map[string]json.RawMessage{"dps": env.Data.Dps})
		obj, raws, err := e.schema.Dispatch(body)
		if err != nil {
			returnCode = 1
			respPayload = []byte(err.Error())
		} else if e.sink != nil && e.events != nil {
			sessID := sess.id
			if obj != nil {
				e.events.Schedule(nil, func() { e.sink.OnObjEvent(sessID, obj) })
			}
			for _, r := range raws {
				r := r
				e.events.Schedule(nil, func() { e.sink.OnRawEvent(sessID, r) })
			}
		}
	}

	plaintext := make([]byte, 4+len(respPayload))
	binary.BigEndian.PutUint32(plaintext[:4], returnCode)
	copy(plaintext[4:], respPayload)

	key, _ := sess.activeKey(e.localKey, f.Type)
	resp, err := frame.Serialize(key, sess.nextSeqOut(), f.Type, plaintext)
	if err == nil {
		e.write(sess, resp)
	}
}

func (e *Engine) handleQuery(sess *Session, f *frame.Frame) {
	body, err := e.schema.Query()
	plaintext := make([]byte, 4, 4+len(body))
	if err != nil {
		binary.BigEndian.PutUint32(plaintext, 1)
		plaintext = append(plaintext, []byte(err.Error())...)
	} else {
		binary.BigEndian.PutUint32(plaintext, 0)
		plaintext = append(plaintext, body...)
	}

	key, _ := sess.activeKey(e.localKey, f.Type)
	resp, err := frame.Serialize(key, sess.nextSeqOut(), f.Type, plaintext)
	if err == nil {
		e.write(sess, resp)
	}
}

func (e *Engine) write(sess *Session, data []byte) {
	if _, err := sess.conn.Write(data); err != nil {
		sess.markFault()
	}
}

// housekeepingLoop sweeps sessions for heartbeat timeout and fault state
// (Spec Section 4.3 "Housekeeping pass").
func (e *Engine) housekeepingLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.config.HeartbeatTimeout / 3)
	defer ticker.Stop()

	for {
		select {
		case <-e.closeCh:
			return
		case <-ticker.C:
			e.sweep()
		}
	}
}

func (e *Engine) sweep() {
	e.sessionsMu.Lock()
	var toClose []*Session
	for _, s := range e.sessions {
		tooOld := s.age() >= e.config.SessionAgeIgnoreIdle
		if s.Fault() || (!tooOld && s.idleFor() >= e.config.HeartbeatTimeout) {
			toClose = append(toClose, s)
		}
	}
	e.sessionsMu.Unlock()

	for _, s := range toClose {
		e.removeSession(s)
	}
}

// Broadcast sends a TP_STAT_REPORT frame containing dpsJSON to every keyed,
// non-faulty session (Spec Section 4.3 "Distribution").
func (e *Engine) Broadcast(dpsJSON []byte) {
	e.sessionsMu.Lock()
	sessions := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.sessionsMu.Unlock()

	plaintext := make([]byte, 4+len(dpsJSON))
	copy(plaintext[4:], dpsJSON)

	for _, s := range sessions {
		if !s.HasSessionKey() || s.Fault() {
			continue
		}
		key, _ := s.activeKey(e.localKey, frame.OpTPStatReport)
		resp, err := frame.Serialize(key, s.nextSeqOut(), frame.OpTPStatReport, plaintext)
		if err != nil {
			s.markFault()
			continue
		}
		e.write(s, resp)
	}
}

// SessionCount returns the number of currently tracked sessions.
func (e *Engine) SessionCount() int {
	e.sessionsMu.Lock()
	defer e.sessionsMu.Unlock()
	return len(e.sessions)
}
