// Command lpv35-device is a runnable example of the LPv35 control-plane
// stack: it loads a DP schema, derives the BLE activation keys from the
// device's local_key, and wires the LAN session engine, the LAN discovery
// beacon, the BLE session engine, mDNS advertising, and the dispatch façade
// together behind a small line-oriented CLI for driving DP reports and
// inspecting device state.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"

	"github.com/edgelink/lpv35/pkg/ble"
	"github.com/edgelink/lpv35/pkg/cryptoutil"
	"github.com/edgelink/lpv35/pkg/discovery"
	"github.com/edgelink/lpv35/pkg/dispatch"
	"github.com/edgelink/lpv35/pkg/dpschema"
	"github.com/edgelink/lpv35/pkg/lan"
	"github.com/edgelink/lpv35/pkg/workqueue"
	"github.com/pion/logging"
)

// demoSchema is the built-in DP document used when -schema is not given: a
// switch (bool, dp 1), a countdown (int, dp 2) and a work mode (enum, dp 3).
const demoSchema = `[
	{"id":1,"type":"obj","subtype":"bool","mode":"rw","trigger":"pulse"},
	{"id":2,"type":"obj","subtype":"int","mode":"rw","trigger":"direct","min":0,"max":86400,"scale":0},
	{"id":3,"type":"obj","subtype":"enum","mode":"rw","trigger":"direct","enum":["white","colour","scene","music"]}
]`

func main() {
	opts := ParseFlags()

	var localKey [16]byte
	if err := decodeHexKey(opts.LocalKeyHex, localKey[:]); err != nil {
		log.Fatalf("local-key: %v", err)
	}
	var authKey [32]byte
	if err := decodeHexKey(opts.AuthKeyHex, authKey[:]); err != nil {
		log.Fatalf("auth-key: %v", err)
	}

	doc := []byte(demoSchema)
	if opts.SchemaPath != "" {
		raw, err := os.ReadFile(opts.SchemaPath)
		if err != nil {
			log.Fatalf("reading schema: %v", err)
		}
		doc = raw
	}
	schema, err := dpschema.Parse(opts.DeviceID, doc)
	if err != nil {
		log.Fatalf("parsing schema: %v", err)
	}

	activation, err := cryptoutil.DeriveActivationKeys(localKey, opts.DeviceID)
	if err != nil {
		log.Fatalf("deriving activation keys: %v", err)
	}

	loggerFactory := logging.NewDefaultLoggerFactory()

	dev := newDeviceState(opts.Bound)

	lanEvents := workqueue.New(workqueue.Config{Name: "lan", LoggerFactory: loggerFactory})
	bleEvents := workqueue.New(workqueue.Config{Name: "ble", LoggerFactory: loggerFactory})
	if err := lanEvents.Start(); err != nil {
		log.Fatalf("starting lan work queue: %v", err)
	}
	if err := bleEvents.Start(); err != nil {
		log.Fatalf("starting ble work queue: %v", err)
	}
	defer lanEvents.Stop()
	defer bleEvents.Stop()

	facade := dispatch.NewFacade(dispatch.Config{
		Schema:        schema,
		LoggerFactory: loggerFactory,
		OnDPObjEvent: func(route string, ev *dpschema.ObjEvent) {
			for id, value := range ev.Values {
				fmt.Printf("[event] dp report via %s: dp=%d value=%v\n", route, id, value)
			}
		},
		OnDPRawEvent: func(route string, ev dpschema.RawEvent) {
			fmt.Printf("[event] raw dp via %s: dp=%d len=%d\n", route, ev.ID, len(ev.Data))
		},
		OnPaired: func(bound bool) {
			fmt.Printf("[event] ble peer paired (bound=%v)\n", bound)
		},
		OnUnbindRequested: func() {
			fmt.Println("[event] unbind requested")
			dev.setBound(false)
		},
		OnSessionClosed: func(route string) {
			fmt.Printf("[event] session closed: %s\n", route)
		},
	})
	defer facade.Close()

	lanEngine, err := lan.NewEngine(lan.Config{
		TCPAddr: opts.LANAddr,
	}, localKey, schema, facade.LANSink(), lanEvents, loggerFactory)
	if err != nil {
		log.Fatalf("creating lan engine: %v", err)
	}
	if err := lanEngine.Start(); err != nil {
		log.Fatalf("starting lan engine: %v", err)
	}
	defer lanEngine.Stop()

	beacon, err := lan.NewBeacon(lan.BeaconConfig{
		Descriptor: func() lan.BeaconDescriptor {
			return lan.BeaconDescriptor{
				IP:            "0.0.0.0",
				GwID:          opts.DeviceID,
				Active:        boolToInt(dev.isBound()),
				Encrypt:       true,
				ProductKey:    opts.ProductKey,
				Version:       "3.5",
				SecurityLevel: 2,
			}
		},
	}, loggerFactory)
	if err != nil {
		log.Fatalf("creating lan beacon: %v", err)
	}
	if err := beacon.Start(); err != nil {
		log.Fatalf("starting lan beacon: %v", err)
	}
	defer beacon.Stop()

	bleLink := &stdoutBLELink{}
	bleSession := ble.NewSession(ble.Config{
		AuthKey:    authKey,
		UUID:       deviceUUID(opts.DeviceID),
		LoginKey:   activation.LoginKey,
		SecKey:     activation.SecKey,
		ProductKey: opts.ProductKey,
		IsBound:    dev.isBound,
		NetStatus:  dev.netStatus,
	}, schema, facade.BLESink(), bleEvents, bleLink, loggerFactory)

	advertiser, err := discovery.NewAdvertiser(discovery.AdvertiserConfig{
		DeviceID:        opts.DeviceID,
		ProtocolVersion: "3.5",
		LoggerFactory:   loggerFactory,
	})
	if err != nil {
		log.Fatalf("creating mdns advertiser: %v", err)
	}
	bleSession.SetAdvertiser(&sessionAdvertiser{adv: advertiser})
	bleSession.SetCloudStatus(dev)
	bleSession.StartMonitor()
	defer bleSession.StopMonitor()
	defer advertiser.Close()

	// Simulate the BLE radio being connected from the start, so BLE-routed
	// reports have a live session to dispatch into even without a real peer.
	bleSession.Connect()
	defer bleSession.Disconnect()

	fmt.Printf("lpv35-device: id=%s product=%s lan=%s bound=%v\n", opts.DeviceID, opts.ProductKey, opts.LANAddr, dev.isBound())
	fmt.Println("type 'help' for a list of commands")

	cli := &CLI{
		schema:  schema,
		facade:  facade,
		lan:     lanEngine,
		ble:     bleSession,
		dev:     dev,
		kv:      make(map[string]string),
		scanner: bufio.NewScanner(os.Stdin),
	}
	cli.Run()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// stdoutBLELink is a stand-in ble.Link for a machine with no real GATT
// radio: it prints what would have gone out over the notify characteristic.
type stdoutBLELink struct{}

func (l *stdoutBLELink) Notify(data []byte) error {
	fmt.Printf("[ble-notify] %d bytes\n", len(data))
	return nil
}

// sessionAdvertiser adapts discovery.Advertiser (mDNS on the LAN) to
// ble.Advertiser's start/stop-by-bound-flag shape. A real BLE stack would
// drive a GAP advertising API instead; the example binary only has mDNS
// available, so it reuses it as a visible stand-in for "advertising is on".
type sessionAdvertiser struct {
	adv *discovery.Advertiser
}

func (s *sessionAdvertiser) StartAdvertising(bound bool) error {
	if s.adv.IsAdvertising() {
		return nil
	}
	return s.adv.Start()
}

func (s *sessionAdvertiser) StopAdvertising() error {
	if !s.adv.IsAdvertising() {
		return nil
	}
	return s.adv.Stop()
}
