// Package dispatch implements the C7 dispatch façade (Spec Section 4.7): it
// presents the application a single typed event sink spanning both the LAN
// and BLE engines, and a report() API that routes outbound DP reports to
// whichever transport is actually available.
package dispatch

import (
	"sync"
	"time"

	"github.com/edgelink/lpv35/pkg/dpschema"
	"github.com/pion/logging"
)

// defaultSyncInterval is the sync worker's re-arm period (Spec Section 4.7:
// "a 5-second sync worker").
const defaultSyncInterval = 5 * time.Second

// LANBroadcaster is the subset of *lan.Engine the façade's report route
// needs.
type LANBroadcaster interface {
	Broadcast(dpsJSON []byte)
	SessionCount() int
}

// BLEReporter is the subset of *ble.Session the façade's report route
// needs.
type BLEReporter interface {
	Paired() bool
	Report(dpsJSON []byte) error
}

// CloudChannel is the last-resort report route. The MQTT cloud channel
// itself is out of scope (spec.md §1 Non-goals: "No cloud protocol
// parsing"); this interface is the seam a real implementation plugs into.
type CloudChannel interface {
	Publish(dpsJSON []byte) error
}

// Config configures a Facade (Spec Section 4.7).
type Config struct {
	Schema *dpschema.Schema

	LAN   LANBroadcaster
	BLE   BLEReporter
	Cloud CloudChannel

	// SyncInterval is the sync worker's re-arm period (default 5s).
	SyncInterval time.Duration

	// OnDPObjEvent delivers one aggregated OBJ dp event, tagged with the
	// originating route ("ble" or "lan:<sessionID>").
	OnDPObjEvent func(route string, ev *dpschema.ObjEvent)

	// OnDPRawEvent delivers one decoded RAW dp, tagged with its route.
	OnDPRawEvent func(route string, ev dpschema.RawEvent)

	// OnPaired fires once a BLE peer completes PAIR_REQ.
	OnPaired func(bound bool)

	// OnUnbindRequested fires on a BLE unbind/reset request.
	OnUnbindRequested func()

	// OnSessionClosed fires when a route's session ends.
	OnSessionClosed func(route string)

	LoggerFactory logging.LoggerFactory
}

func (c *Config) applyDefaults() {
	if c.SyncInterval <= 0 {
		c.SyncInterval = defaultSyncInterval
	}
}

// Facade is the C7 dispatch façade.
type Facade struct {
	config Config
	log    logging.LeveledLogger

	mu        sync.Mutex
	syncTimer *time.Timer
	closed    bool
}

// NewFacade creates a Facade bound to schema and the given transports. Any
// of LAN, BLE, or Cloud may be nil (e.g. a BLE-only or LAN-only device).
func NewFacade(config Config) *Facade {
	config.applyDefaults()
	f := &Facade{config: config}
	if config.LoggerFactory != nil {
		f.log = config.LoggerFactory.NewLogger("dispatch")
	}
	return f
}

// Report filters dps through the schema's report rule, then routes the
// surviving payload: BLE when paired, else LAN when any session is open,
// else the cloud channel (Spec Section 4.7). A nil survivor set is not an
// error — it means every dp was filtered as unchanged.
func (f *Facade) Report(dps []dpschema.DPValue, flags dpschema.ReportFlags) error {
	if f.config.Schema == nil {
		return ErrNoRoute
	}
	body, err := f.config.Schema.Report(dpschema.ReportOBJ, dps, flags)
	if err != nil {
		return err
	}
	if body == nil {
		return nil
	}

	ids := make([]uint8, len(dps))
	for i, dp := range dps {
		ids[i] = dp.ID
	}
	f.route(body, ids)
	return nil
}

func (f *Facade) route(body []byte, ids []uint8) {
	switch {
	case f.config.BLE != nil && f.config.BLE.Paired():
		if err := f.config.BLE.Report(body); err != nil {
			if f.log != nil {
				f.log.Warnf("dispatch: ble report failed, arming sync worker: %v", err)
			}
			f.armSyncWorker()
			return
		}

	case f.config.LAN != nil && f.config.LAN.SessionCount() > 0:
		f.config.LAN.Broadcast(body)

	case f.config.Cloud != nil:
		if err := f.config.Cloud.Publish(body); err != nil {
			if f.log != nil {
				f.log.Warnf("dispatch: cloud publish failed, arming sync worker: %v", err)
			}
			f.armSyncWorker()
			return
		}
		f.config.Schema.Ack(ids)

	default:
		f.armSyncWorker()
	}
}

// Ack transitions ids to pv_stat=CLOUD, invoked by a real cloud channel's
// asynchronous ack callback (Spec Section 3.5: "Cloud-ack transitions
// pv_stat from LOCAL to CLOUD").
func (f *Facade) Ack(ids []uint8) {
	f.config.Schema.Ack(ids)
}

// armSyncWorker schedules one re-emit of all pending (non-CLOUD) dps after
// SyncInterval, unless a re-emit is already pending.
func (f *Facade) armSyncWorker() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.syncTimer != nil {
		return
	}
	f.syncTimer = time.AfterFunc(f.config.SyncInterval, f.runSyncWorker)
}

func (f *Facade) runSyncWorker() {
	f.mu.Lock()
	f.syncTimer = nil
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return
	}

	body, ids, err := f.config.Schema.PendingReport()
	if err != nil {
		if f.log != nil {
			f.log.Warnf("dispatch: sync worker: %v", err)
		}
		return
	}
	if body == nil {
		return
	}
	f.route(body, ids)
}

// Close stops any pending sync worker timer.
func (f *Facade) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.syncTimer != nil {
		f.syncTimer.Stop()
		f.syncTimer = nil
	}
}
