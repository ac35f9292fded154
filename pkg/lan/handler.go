package lan

import "github.com/edgelink/lpv35/pkg/dpschema"

// EventSink receives decoded DP events from the engine. Implementations
// must not block; the engine invokes EventSink methods from a work-queue
// goroutine, never from the session's I/O goroutine (Spec Section 5:
// "Event delivery to the application is on the work-queue thread, never
// the I/O thread").
type EventSink interface {
	// OnObjEvent delivers one aggregated OBJ dp event decoded from a single
	// inbound command (Spec Section 4.2).
	OnObjEvent(sessionID string, ev *dpschema.ObjEvent)

	// OnRawEvent delivers one decoded RAW dp.
	OnRawEvent(sessionID string, ev dpschema.RawEvent)

	// OnSessionClosed notifies that a session has ended (Spec Section 5
	// "LAN_CLIENT_CLOSE event").
	OnSessionClosed(sessionID string)
}
