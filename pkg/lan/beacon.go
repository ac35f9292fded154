package lan

import (
	"crypto/md5"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/edgelink/lpv35/pkg/frame"
	"github.com/pion/logging"
)

// beaconKeySeed is app_key2 before hashing: the fixed 16-byte constant the
// source spells out byte-by-byte (original_source/.../lan/tuya_lan.c).
var beaconKeySeed = []byte("yGAdlopoPVldABfn")

// BroadcastKey returns the MD5-derived key used to encrypt/decrypt the LAN
// discovery beacon (Spec Section 4.4).
func BroadcastKey() [16]byte {
	return md5.Sum(beaconKeySeed)
}

// BeaconDescriptor is the plaintext JSON body of the discovery beacon
// (Spec Section 4.4).
type BeaconDescriptor struct {
	IP            string `json:"ip"`
	GwID          string `json:"gwId"`
	Active        int    `json:"active"`
	Encrypt       bool   `json:"encrypt"`
	ProductKey    string `json:"productKey"`
	Version       string `json:"version"`
	SecurityLevel int    `json:"sl"`
}

// BeaconConfig configures the discovery Beacon.
type BeaconConfig struct {
	// ListenAddr is the local address bound for both sending the periodic
	// broadcast and receiving probe responses (Spec Section 6.2: UDP 7000).
	ListenAddr string

	// BroadcastAddr is the destination the periodic beacon is sent to.
	BroadcastAddr string

	// Interval is how often the beacon fires (Spec Section 4.4: 1s).
	Interval time.Duration

	// Descriptor returns the current descriptor body; called fresh for
	// every broadcast so IP/active/bound state stay current.
	Descriptor func() BeaconDescriptor
}

func (c *BeaconConfig) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":7000"
	}
	if c.BroadcastAddr == "" {
		c.BroadcastAddr = "255.255.255.255:7000"
	}
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
}

// Beacon implements the LAN discovery beacon (Spec Section 4.4): a 1-second
// UDP broadcast of a C1-framed device descriptor, and a probe responder for
// unicast APP_UDP_BOARDCAST packets.
type Beacon struct {
	config BeaconConfig
	log    logging.LeveledLogger

	conn    *net.UDPConn
	dstAddr *net.UDPAddr

	closeCh chan struct{}
	wg      sync.WaitGroup

	stateMu sync.Mutex
	started bool
	closed  bool
}

// NewBeacon creates a Beacon in the stopped state.
func NewBeacon(config BeaconConfig, loggerFactory logging.LoggerFactory) (*Beacon, error) {
	config.applyDefaults()
	b := &Beacon{config: config, closeCh: make(chan struct{})}
	if loggerFactory != nil {
		b.log = loggerFactory.NewLogger("lan-beacon")
	}
	return b, nil
}

// Start binds the UDP socket and begins the periodic broadcast plus probe
// responder loop.
func (b *Beacon) Start() error {
	b.stateMu.Lock()
	if b.closed {
		b.stateMu.Unlock()
		return ErrClosed
	}
	if b.started {
		b.stateMu.Unlock()
		return ErrAlreadyStarted
	}
	b.started = true
	b.stateMu.Unlock()

	laddr, err := net.ResolveUDPAddr("udp4", b.config.ListenAddr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return err
	}
	b.conn = conn

	dst, err := net.ResolveUDPAddr("udp4", b.config.BroadcastAddr)
	if err != nil {
		conn.Close()
		return err
	}
	b.dstAddr = dst

	b.wg.Add(2)
	go b.sendLoop()
	go b.recvLoop()
	return nil
}

// Stop closes the socket and waits for both loops to exit.
func (b *Beacon) Stop() error {
	b.stateMu.Lock()
	if b.closed {
		b.stateMu.Unlock()
		return ErrClosed
	}
	b.closed = true
	b.stateMu.Unlock()

	close(b.closeCh)
	if b.conn != nil {
		b.conn.Close()
	}
	b.wg.Wait()
	return nil
}

func (b *Beacon) sendLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.closeCh:
			return
		case <-ticker.C:
			b.broadcastOnce()
		}
	}
}

func (b *Beacon) broadcastOnce() {
	frameBytes, err := b.buildFrame()
	if err != nil {
		if b.log != nil {
			b.log.Warnf("lan beacon: build frame: %v", err)
		}
		return
	}
	if _, err := b.conn.WriteToUDP(frameBytes, b.dstAddr); err != nil && b.log != nil {
		b.log.Debugf("lan beacon: send: %v", err)
	}
}

func (b *Beacon) buildFrame() ([]byte, error) {
	body, err := json.Marshal(b.config.Descriptor())
	if err != nil {
		return nil, err
	}
	key := BroadcastKey()
	plaintext := make([]byte, 4+len(body))
	copy(plaintext[4:], body)
	return frame.Serialize(key, 0, frame.OpEncryption, plaintext)
}

// probeBody is the JSON payload of an APP_UDP_BOARDCAST probe (Spec Section
// 4.4): the app identifies itself and the address to reply to.
type probeBody struct {
	IP   string `json:"ip"`
	From string `json:"from"`
}

// recvLoop answers unicast APP_UDP_BOARDCAST probes (Spec Section 4.4: "if
// the enclosed JSON contains the app's IP, respond with one unicast
// broadcast to that IP"). A probe missing either "ip" or "from" is not a
// valid app probe and is dropped (original_source/.../lan/tuya_lan.c's
// __udp_serv_is_in_packet_vaild + lan_udp_serv_sock_read).
func (b *Beacon) recvLoop() {
	defer b.wg.Done()

	buf := make([]byte, 2048)
	key := BroadcastKey()

	for {
		select {
		case <-b.closeCh:
			return
		default:
		}

		n, addr, err := b.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-b.closeCh:
				return
			default:
				continue
			}
		}

		f, err := frame.Parse(key, buf[:n])
		if err != nil || f.Type != frame.OpAppUDPBroadcast {
			continue
		}

		_, payload := f.ReturnCode()
		var probe probeBody
		if err := json.Unmarshal(payload, &probe); err != nil || probe.IP == "" || probe.From == "" {
			continue
		}

		replyAddr := addr
		if ip := net.ParseIP(probe.IP); ip != nil {
			replyAddr = &net.UDPAddr{IP: ip, Port: addr.Port}
		}

		frameBytes, err := b.buildFrame()
		if err != nil {
			continue
		}
		if _, err := b.conn.WriteToUDP(frameBytes, replyAddr); err != nil && b.log != nil {
			b.log.Debugf("lan beacon: probe reply: %v", err)
		}
	}
}
