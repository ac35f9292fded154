package dispatch

import (
	"github.com/edgelink/lpv35/pkg/ble"
	"github.com/edgelink/lpv35/pkg/dpschema"
	"github.com/edgelink/lpv35/pkg/lan"
)

// lanSink adapts Facade's callbacks to lan.EventSink, tagging each event
// with the originating session id (Spec Section 4.7 "event sink").
type lanSink struct{ f *Facade }

func (s lanSink) OnObjEvent(sessionID string, ev *dpschema.ObjEvent) {
	if s.f.config.OnDPObjEvent != nil {
		s.f.config.OnDPObjEvent("lan:"+sessionID, ev)
	}
}

func (s lanSink) OnRawEvent(sessionID string, ev dpschema.RawEvent) {
	if s.f.config.OnDPRawEvent != nil {
		s.f.config.OnDPRawEvent("lan:"+sessionID, ev)
	}
}

func (s lanSink) OnSessionClosed(sessionID string) {
	if s.f.config.OnSessionClosed != nil {
		s.f.config.OnSessionClosed("lan:" + sessionID)
	}
}

// bleSink adapts Facade's callbacks to ble.EventSink. BLE has one session at
// a time, so events are tagged with the fixed route "ble".
type bleSink struct{ f *Facade }

func (s bleSink) OnObjEvent(ev *dpschema.ObjEvent) {
	if s.f.config.OnDPObjEvent != nil {
		s.f.config.OnDPObjEvent("ble", ev)
	}
}

func (s bleSink) OnRawEvent(ev dpschema.RawEvent) {
	if s.f.config.OnDPRawEvent != nil {
		s.f.config.OnDPRawEvent("ble", ev)
	}
}

func (s bleSink) OnPaired(bound bool) {
	if s.f.config.OnPaired != nil {
		s.f.config.OnPaired(bound)
	}
}

func (s bleSink) OnUnbindRequested() {
	if s.f.config.OnUnbindRequested != nil {
		s.f.config.OnUnbindRequested()
	}
}

func (s bleSink) OnDisconnected() {
	if s.f.config.OnSessionClosed != nil {
		s.f.config.OnSessionClosed("ble")
	}
}

// LANSink returns the adapter to hand to lan.NewEngine as its EventSink.
func (f *Facade) LANSink() lan.EventSink { return lanSink{f: f} }

// BLESink returns the adapter to hand to ble.NewSession as its EventSink.
func (f *Facade) BLESink() ble.EventSink { return bleSink{f: f} }
