package dispatch

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/edgelink/lpv35/pkg/dpschema"
)

type fakeBLE struct {
	mu     sync.Mutex
	paired bool
	sent   [][]byte
	err    error
}

func (b *fakeBLE) Paired() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paired
}

func (b *fakeBLE) Report(body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.sent = append(b.sent, append([]byte(nil), body...))
	return nil
}

type fakeLAN struct {
	mu       sync.Mutex
	sessions int
	sent     [][]byte
}

func (l *fakeLAN) Broadcast(body []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, append([]byte(nil), body...))
}

func (l *fakeLAN) SessionCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessions
}

type fakeCloud struct {
	mu        sync.Mutex
	published [][]byte
	err       error
}

func (c *fakeCloud) Publish(body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.published = append(c.published, append([]byte(nil), body...))
	return nil
}

func newTestSchema(t *testing.T) *dpschema.Schema {
	t.Helper()
	doc := `[{"id":1,"type":"obj","subtype":"bool","mode":"rw","trigger":"direct"}]`
	schema, err := dpschema.Parse("dev-1", []byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	return schema
}

func TestReportPrefersBLEWhenPaired(t *testing.T) {
	schema := newTestSchema(t)
	ble := &fakeBLE{paired: true}
	lanT := &fakeLAN{sessions: 1}
	cloud := &fakeCloud{}

	f := NewFacade(Config{Schema: schema, LAN: lanT, BLE: ble, Cloud: cloud})
	if err := f.Report([]dpschema.DPValue{{ID: 1, Value: true}}, 0); err != nil {
		t.Fatal(err)
	}

	if len(ble.sent) != 1 {
		t.Fatalf("expected one BLE report, got %d", len(ble.sent))
	}
	if len(lanT.sent) != 0 || len(cloud.published) != 0 {
		t.Fatal("expected LAN/cloud untouched when BLE is paired")
	}
}

func TestReportFallsBackToLANThenCloud(t *testing.T) {
	schema := newTestSchema(t)
	ble := &fakeBLE{paired: false}
	lanT := &fakeLAN{sessions: 1}
	cloud := &fakeCloud{}

	f := NewFacade(Config{Schema: schema, LAN: lanT, BLE: ble, Cloud: cloud})
	if err := f.Report([]dpschema.DPValue{{ID: 1, Value: true}}, 0); err != nil {
		t.Fatal(err)
	}
	if len(lanT.sent) != 1 {
		t.Fatalf("expected one LAN broadcast, got %d", len(lanT.sent))
	}

	lanT.mu.Lock()
	lanT.sessions = 0
	lanT.mu.Unlock()

	if err := f.Report([]dpschema.DPValue{{ID: 1, Value: false}}, dpschema.FlagNoFilter); err != nil {
		t.Fatal(err)
	}
	if len(cloud.published) != 1 {
		t.Fatalf("expected one cloud publish once LAN has no sessions, got %d", len(cloud.published))
	}

	node := schema.Node(1)
	if node.PVStat() != dpschema.PVCloud {
		t.Fatalf("expected pv_stat CLOUD after successful cloud publish, got %v", node.PVStat())
	}
}

func TestSyncWorkerRearmsOnAckFailure(t *testing.T) {
	schema := newTestSchema(t)
	cloud := &fakeCloud{err: errors.New("no network")}

	f := NewFacade(Config{Schema: schema, Cloud: cloud, SyncInterval: 20 * time.Millisecond})
	defer f.Close()

	if err := f.Report([]dpschema.DPValue{{ID: 1, Value: true}}, 0); err != nil {
		t.Fatal(err)
	}

	cloud.mu.Lock()
	cloud.err = nil
	cloud.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		cloud.mu.Lock()
		n := len(cloud.published)
		cloud.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected sync worker to retry the pending report after SyncInterval")
}
