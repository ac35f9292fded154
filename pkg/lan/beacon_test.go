package lan

import (
	"net"
	"testing"
	"time"

	"github.com/edgelink/lpv35/pkg/frame"
)

func newTestBeacon(t *testing.T) (*Beacon, *net.UDPConn) {
	t.Helper()

	b, err := NewBeacon(BeaconConfig{
		ListenAddr: "127.0.0.1:0",
		Interval:   time.Hour, // no periodic broadcasts during the test
		Descriptor: func() BeaconDescriptor { return BeaconDescriptor{GwID: "dev-1"} },
	}, nil)
	if err != nil {
		t.Fatalf("NewBeacon: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { b.Stop() })

	app, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("app socket: %v", err)
	}
	t.Cleanup(func() { app.Close() })

	return b, app
}

func sendProbe(t *testing.T, app *net.UDPConn, dst net.Addr, body string) {
	t.Helper()
	plaintext := make([]byte, 4+len(body))
	copy(plaintext[4:], body)
	raw, err := frame.Serialize(BroadcastKey(), 0, frame.OpAppUDPBroadcast, plaintext)
	if err != nil {
		t.Fatalf("serialize probe: %v", err)
	}
	if _, err := app.WriteTo(raw, dst); err != nil {
		t.Fatalf("send probe: %v", err)
	}
}

// TestBeaconRepliesToValidProbe covers Spec Section 4.4: a well-formed
// APP_UDP_BOARDCAST probe (JSON carrying both "ip" and "from") gets a
// unicast reply.
func TestBeaconRepliesToValidProbe(t *testing.T) {
	b, app := newTestBeacon(t)
	sendProbe(t, app, b.conn.LocalAddr(), `{"ip":"127.0.0.1","from":"app-1"}`)

	app.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 2048)
	n, _, err := app.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("expected a probe reply, got: %v", err)
	}
	if n == 0 {
		t.Fatal("expected a non-empty probe reply")
	}
}

// TestBeaconIgnoresProbeMissingIPOrFrom covers Spec Section 4.4: "if the
// enclosed JSON contains the app's IP" — a probe missing "ip" or "from"
// must be dropped silently, not answered.
func TestBeaconIgnoresProbeMissingIPOrFrom(t *testing.T) {
	b, app := newTestBeacon(t)
	sendProbe(t, app, b.conn.LocalAddr(), `{"from":"app-1"}`)

	app.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, 2048)
	if _, _, err := app.ReadFromUDP(buf); err == nil {
		t.Fatal("expected no reply to a probe missing \"ip\"")
	}
}
