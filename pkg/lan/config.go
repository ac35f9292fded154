package lan

import "time"

// Config configures a Engine (Spec Section 4.3, 9).
type Config struct {
	// TCPAddr is the listen address for the session socket, e.g. ":6668".
	TCPAddr string

	// ClientLimit bounds concurrent sessions (Spec Section 4.3: default 3).
	ClientLimit int

	// HeartbeatTimeout closes a session idle this long (Spec Section 4.3:
	// default 30s).
	HeartbeatTimeout time.Duration

	// SeqErrThreshold is how far behind seq_in a replayed SEQUENCE must be
	// before the replay closes the session. Left at its Go zero value it defaults
	// to 8 in applyDefaults; set StrictSeqCheck to force "close on any
	// replay" instead (Spec Section 9: "sequence_err_threshold is not
	// initialised in the source... a strict mode (count = 0) should be
	// selectable").
	SeqErrThreshold uint32

	// StrictSeqCheck forces SeqErrThreshold to 0 regardless of its
	// configured value (Spec Section 9: strict mode, close on any replay).
	StrictSeqCheck bool

	// AllowNoSessionKeyNum is the slack count of non-handshake frames
	// tolerated before the session key is established (Spec Section 9:
	// allow_no_session_key_num = 3 predates strict checking).
	AllowNoSessionKeyNum int

	// StrictSessionKey forces AllowNoSessionKeyNum to 0 regardless of its
	// configured value (Spec Section 9: "a strict mode should be
	// selectable").
	StrictSessionKey bool

	// ReceiveBufferInitial is the starting size of a session's receive
	// buffer (Spec Section 4.3: default 512).
	ReceiveBufferInitial int

	// MaxFrameLen bounds a session's receive buffer growth (Spec Section
	// 4.3: LAN_FRAME_MAX_LEN = 4KiB).
	MaxFrameLen int

	// SessionAgeIgnoreIdle is the age past which a session's idleness is
	// no longer grounds for closing it (Spec Section 4.3: 30 days).
	SessionAgeIgnoreIdle time.Duration
}

func (c *Config) applyDefaults() {
	if c.TCPAddr == "" {
		c.TCPAddr = ":6668"
	}
	if c.ClientLimit <= 0 {
		c.ClientLimit = 3
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 30 * time.Second
	}
	if c.ReceiveBufferInitial <= 0 {
		c.ReceiveBufferInitial = 512
	}
	if c.MaxFrameLen <= 0 {
		c.MaxFrameLen = 4096
	}
	if c.SessionAgeIgnoreIdle <= 0 {
		c.SessionAgeIgnoreIdle = 30 * 24 * time.Hour
	}
	if c.StrictSessionKey {
		c.AllowNoSessionKeyNum = 0
	} else if c.AllowNoSessionKeyNum <= 0 {
		c.AllowNoSessionKeyNum = 3
	}
	if c.StrictSeqCheck {
		c.SeqErrThreshold = 0
	} else if c.SeqErrThreshold == 0 {
		c.SeqErrThreshold = 8
	}
}
