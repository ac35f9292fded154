package lan

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/edgelink/lpv35/pkg/cryptoutil"
	"github.com/edgelink/lpv35/pkg/dpschema"
	"github.com/edgelink/lpv35/pkg/frame"
	"github.com/edgelink/lpv35/pkg/workqueue"
)

type fakeSink struct {
	objCh chan *dpschema.ObjEvent
}

func newFakeSink() *fakeSink { return &fakeSink{objCh: make(chan *dpschema.ObjEvent, 4)} }

func (f *fakeSink) OnObjEvent(sessionID string, ev *dpschema.ObjEvent) { f.objCh <- ev }
func (f *fakeSink) OnRawEvent(string, dpschema.RawEvent)               {}
func (f *fakeSink) OnSessionClosed(string)                             {}

func newTestEngine(t *testing.T) (*Engine, [16]byte, *fakeSink, *workqueue.Queue) {
	t.Helper()
	doc := `[{"id":1,"type":"obj","subtype":"bool","mode":"rw","trigger":"direct"}]`
	schema, err := dpschema.Parse("dev-1", []byte(doc))
	if err != nil {
		t.Fatal(err)
	}

	var localKey [16]byte
	copy(localKey[:], []byte("0123456789abcdef"))

	sink := newFakeSink()
	q := workqueue.New(workqueue.Config{Name: "events"})
	if err := q.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { q.Stop() })

	cfg := Config{TCPAddr: "127.0.0.1:0", SeqErrThreshold: 8}
	eng, err := NewEngine(cfg, localKey, schema, sink, q, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { eng.Stop() })

	return eng, localKey, sink, q
}

func negotiateSessionKey(t *testing.T, conn net.Conn, localKey [16]byte) [16]byte {
	t.Helper()

	var randA [16]byte
	for i := range randA {
		randA[i] = 0xAA
	}
	f1, err := frame.Serialize(localKey, 1, frame.OpSecurityType3, randA[:])
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(f1); err != nil {
		t.Fatal(err)
	}

	resp := readFrame(t, conn)
	f2, err := frame.Parse(localKey, resp)
	if err != nil {
		t.Fatal(err)
	}
	if f2.Type != frame.OpSecurityType4 {
		t.Fatalf("expected TYPE4, got %s", f2.Type)
	}
	var randB [16]byte
	copy(randB[:], f2.Plaintext[:16])

	hmac := cryptoutil.HMACSHA256(localKey[:], randB[:])
	f3, err := frame.Serialize(localKey, 2, frame.OpSecurityType5, hmac)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(f3); err != nil {
		t.Fatal(err)
	}

	sessionKey, err := cryptoutil.DeriveSessionKey(localKey, randA, randB)
	if err != nil {
		t.Fatal(err)
	}
	return sessionKey
}

func readFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	head := make([]byte, frame.HeadSize+frame.FixedHeadSize)
	if _, err := readFull(conn, head); err != nil {
		t.Fatal(err)
	}
	total, ok := frame.PeekTotalSize(head)
	if !ok {
		t.Fatal("could not peek frame length")
	}
	rest := make([]byte, total-len(head))
	if _, err := readFull(conn, rest); err != nil {
		t.Fatal(err)
	}
	return append(head, rest...)
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestLANKeyNegotiationAndCommand(t *testing.T) {
	eng, localKey, sink, _ := newTestEngine(t)

	conn, err := net.Dial("tcp", eng.listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	sessionKey := negotiateSessionKey(t, conn, localKey)

	body, _ := json.Marshal(map[string]any{
		"data": map[string]any{
			"dps":   map[string]any{"1": true},
			"devId": "dev-1",
		},
	})
	plaintext := make([]byte, 4+len(body))
	copy(plaintext[4:], body)
	cmd, err := frame.Serialize(sessionKey, 3, frame.OpTPCmd, plaintext)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(cmd); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-sink.objCh:
		if ev.Values[1] != true {
			t.Fatalf("expected dp 1 = true, got %#v", ev.Values)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for obj event")
	}

	resp := readFrame(t, conn)
	f, err := frame.Parse(sessionKey, resp)
	if err != nil {
		t.Fatal(err)
	}
	rc, _ := f.ReturnCode()
	if rc != 0 {
		t.Fatalf("expected return_code 0, got %d", rc)
	}
}

func TestLANHeartbeat(t *testing.T) {
	eng, localKey, _, _ := newTestEngine(t)

	conn, err := net.Dial("tcp", eng.listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	sessionKey := negotiateSessionKey(t, conn, localKey)

	hb, err := frame.Serialize(sessionKey, 3, frame.OpHeartbeat, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(hb); err != nil {
		t.Fatal(err)
	}

	resp := readFrame(t, conn)
	f, err := frame.Parse(sessionKey, resp)
	if err != nil {
		t.Fatal(err)
	}
	if f.Type != frame.OpHeartbeat {
		t.Fatalf("expected heartbeat echo, got %s", f.Type)
	}
}

func TestLANSequenceReplayClosesSession(t *testing.T) {
	eng, localKey, _, _ := newTestEngine(t)

	conn, err := net.Dial("tcp", eng.listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	sessionKey := negotiateSessionKey(t, conn, localKey)

	hb, err := frame.Serialize(sessionKey, 100, frame.OpHeartbeat, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(hb); err != nil {
		t.Fatal(err)
	}
	readFrame(t, conn)

	replay, err := frame.Serialize(sessionKey, 1, frame.OpHeartbeat, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(replay); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected connection close after sequence gap exceeds threshold")
	}
}
