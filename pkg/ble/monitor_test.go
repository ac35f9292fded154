package ble

import (
	"sync"
	"testing"
	"time"

	"github.com/edgelink/lpv35/pkg/dpschema"
	"github.com/edgelink/lpv35/pkg/workqueue"
)

type fakeAdvertiser struct {
	mu      sync.Mutex
	started int
	stopped int
	bound   bool
}

func (a *fakeAdvertiser) StartAdvertising(bound bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started++
	a.bound = bound
	return nil
}

func (a *fakeAdvertiser) StopAdvertising() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped++
	return nil
}

func (a *fakeAdvertiser) snapshot() (started, stopped int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started, a.stopped
}

type fakeCloudStatus struct {
	mu        sync.Mutex
	connected bool
}

func (c *fakeCloudStatus) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeCloudStatus) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func TestMonitorLoopAdvertisesUntilCloudConnects(t *testing.T) {
	doc := `[{"id":1,"type":"obj","subtype":"bool","mode":"rw"}]`
	schema, err := dpschema.Parse("dev-1", []byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	q := workqueue.New(workqueue.Config{Name: "ble-events"})
	if err := q.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { q.Stop() })

	cfg := Config{MonitorInterval: 10 * time.Millisecond}
	s := NewSession(cfg, schema, nil, q, newFakeLink(), nil)

	advertiser := &fakeAdvertiser{}
	cloud := &fakeCloudStatus{}
	s.SetAdvertiser(advertiser)
	s.SetCloudStatus(cloud)

	s.StartMonitor()
	t.Cleanup(s.StopMonitor)

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if started, _ := advertiser.snapshot(); started > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if started, _ := advertiser.snapshot(); started == 0 {
		t.Fatal("expected advertising to start while cloud is disconnected")
	}

	cloud.setConnected(true)

	deadline = time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, stopped := advertiser.snapshot(); stopped > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, stopped := advertiser.snapshot(); stopped == 0 {
		t.Fatal("expected advertising to stop once cloud connects")
	}
}
