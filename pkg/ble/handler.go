package ble

import "github.com/edgelink/lpv35/pkg/dpschema"

// EventSink receives decoded events from a Session, scheduled onto the
// application's work queue rather than invoked on the GATT I/O path (Spec
// Section 5: "Event delivery to the application is on the work-queue
// thread, never on the I/O thread").
type EventSink interface {
	OnObjEvent(ev *dpschema.ObjEvent)
	OnRawEvent(ev dpschema.RawEvent)
	OnPaired(bound bool)
	OnUnbindRequested()
	OnDisconnected()
}

// Link is the outbound half of the GATT transport: one notify-characteristic
// write per call (Spec Section 6.3: "one write characteristic (app->dev) and
// one notify characteristic (dev->app)").
type Link interface {
	Notify(data []byte) error
}

// Advertiser controls BLE advertising state (Spec Section 4.6 monitor loop).
type Advertiser interface {
	StartAdvertising(bound bool) error
	StopAdvertising() error
}

// CloudStatus reports whether the cloud (MQTT) channel is currently
// connected, consulted by the monitor loop.
type CloudStatus interface {
	Connected() bool
}

// ChannelHandler processes one reassembled downlink transparent payload
// (Spec Section 4.6: "dispatches to a registered channel callback keyed by
// the first two bytes of the payload").
type ChannelHandler func(data []byte)
