// Package dpschema implements the device-property (DP) schema and its JSON
// codec: parsing a schema document, holding typed current values, and
// encoding/decoding DP reports and commands (Spec Section 3.5, 4.2).
package dpschema

import (
	"encoding/json"
	"fmt"
	"sync"
)

// NodeType is the top-level DP kind.
type NodeType uint8

const (
	NodeOBJ NodeType = iota
	NodeRAW
	NodeFILE
)

// SubType is the OBJ sub-kind.
type SubType uint8

const (
	SubNone SubType = iota
	SubBool
	SubInt
	SubString
	SubEnum
	SubBitmap
)

// Mode controls who may read/write a DP.
type Mode uint8

const (
	ModeRW Mode = iota
	ModeWR
	ModeRO
)

// Trigger controls report filtering (Spec Section 3.5).
type Trigger uint8

const (
	TriggerPulse Trigger = iota
	TriggerDirect
)

// Passive controls whether upload is suppressed until first query.
type Passive uint8

const (
	PassiveFalse Passive = iota
	PassiveTrue
	PassiveFalseOnce
)

// PVStat tracks cloud-ack state of the cached value.
type PVStat uint8

const (
	PVInvalid PVStat = iota
	PVLocal
	PVCloud
)

// ReportKind selects report semantics (Spec Section 4.2 report()).
type ReportKind uint8

const (
	ReportOBJ ReportKind = iota
	ReportRAW
	ReportStat
	ReportRetrans
)

// ReportFlags modifies filter behavior.
type ReportFlags uint8

const (
	// FlagNoFilter bypasses the unchanged-value filter (Spec Section 3.5).
	FlagNoFilter ReportFlags = 1 << 0
)

// descriptor is the on-wire JSON shape of one schema entry.
type descriptor struct {
	ID      uint8    `json:"id"`
	Type    string   `json:"type"`              // "obj" | "raw" | "file"
	SubType string   `json:"subtype,omitempty"` // "bool"|"int"|"string"|"enum"|"bitmap"
	Mode    string   `json:"mode"`              // "rw"|"wr"|"ro"
	Trigger string   `json:"trigger,omitempty"` // "pulse"|"direct"
	Passive string   `json:"passive,omitempty"` // "false"|"true"|"false_once"
	Min     int64    `json:"min,omitempty"`
	Max     int64    `json:"max,omitempty"`
	Scale   int      `json:"scale,omitempty"`
	MaxLen  int      `json:"maxlen,omitempty"`
	Enum    []string `json:"enum,omitempty"`
}

// Node is one typed DP entry plus its current cached value.
type Node struct {
	ID      uint8
	Type    NodeType
	SubType SubType
	Mode    Mode
	Trigger Trigger

	IntMin, IntMax int64
	IntScale       int
	StrMaxLen      int
	EnumValues     []string

	mu        sync.Mutex
	pvStat    PVStat
	passive   Passive
	boolVal   bool
	intVal    int64
	strVal    string
	enumIdx   int
	bitmapVal uint32
}

// PVStat returns the current cloud-ack status under lock.
func (n *Node) PVStat() PVStat {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pvStat
}

func (n *Node) setPVStat(s PVStat) {
	n.mu.Lock()
	n.pvStat = s
	n.mu.Unlock()
}

// Passive returns the dp's current passive-upload state under lock.
func (n *Node) Passive() Passive {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.passive
}

// suppressedLocked reports whether an upload must be suppressed, with n.mu
// already held (Spec Section 3.5: "passive == TRUE suppresses upload until
// first query").
func (n *Node) suppressedLocked() bool {
	return n.passive == PassiveTrue
}

// clearPassiveOnQuery transitions PASSIVE_TRUE to PASSIVE_FALSE_ONCE the
// first time the dp is read by a query (Spec Section 3.5, original
// dp_schema.c's PSV_TRUE -> PSV_F_ONCE transition on first query).
func (n *Node) clearPassiveOnQuery() {
	n.mu.Lock()
	if n.passive == PassiveTrue {
		n.passive = PassiveFalseOnce
	}
	n.mu.Unlock()
}

// Readable reports whether app/cloud may query this DP (not WR).
func (n *Node) Readable() bool { return n.Mode != ModeWR }

// Writable reports whether app/cloud may write this DP (not RO).
func (n *Node) Writable() bool { return n.Mode != ModeRO }

// Schema is the ordered set of DP nodes for one device id (Spec Section 3.5).
type Schema struct {
	DeviceID string

	mu    sync.RWMutex
	order []uint8
	nodes map[uint8]*Node
}

// Parse builds a Schema from a JSON array of DP descriptors.
func Parse(deviceID string, doc []byte) (*Schema, error) {
	var descs []descriptor
	if err := json.Unmarshal(doc, &descs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	s := &Schema{
		DeviceID: deviceID,
		nodes:    make(map[uint8]*Node, len(descs)),
	}
	for _, d := range descs {
		n, err := buildNode(d)
		if err != nil {
			return nil, err
		}
		s.order = append(s.order, n.ID)
		s.nodes[n.ID] = n
	}
	return s, nil
}

func buildNode(d descriptor) (*Node, error) {
	n := &Node{ID: d.ID}

	switch d.Type {
	case "raw":
		n.Type = NodeRAW
	case "file":
		n.Type = NodeFILE
	case "obj", "":
		n.Type = NodeOBJ
	default:
		return nil, fmt.Errorf("%w: dp %d unknown type %q", ErrInvalidJSON, d.ID, d.Type)
	}

	switch d.Mode {
	case "wr":
		n.Mode = ModeWR
	case "ro":
		n.Mode = ModeRO
	case "rw", "":
		n.Mode = ModeRW
	default:
		return nil, fmt.Errorf("%w: dp %d unknown mode %q", ErrInvalidJSON, d.ID, d.Mode)
	}

	switch d.Trigger {
	case "direct":
		n.Trigger = TriggerDirect
	case "pulse", "":
		n.Trigger = TriggerPulse
	default:
		return nil, fmt.Errorf("%w: dp %d unknown trigger %q", ErrInvalidJSON, d.ID, d.Trigger)
	}

	switch d.Passive {
	case "true":
		n.passive = PassiveTrue
	case "false_once":
		n.passive = PassiveFalseOnce
	case "false", "":
		n.passive = PassiveFalse
	default:
		return nil, fmt.Errorf("%w: dp %d unknown passive %q", ErrInvalidJSON, d.ID, d.Passive)
	}

	if n.Type == NodeOBJ {
		switch d.SubType {
		case "bool":
			n.SubType = SubBool
		case "int":
			n.SubType = SubInt
			n.IntMin, n.IntMax, n.IntScale = d.Min, d.Max, d.Scale
		case "string":
			n.SubType = SubString
			n.StrMaxLen = d.MaxLen
		case "enum":
			n.SubType = SubEnum
			n.EnumValues = d.Enum
		case "bitmap":
			n.SubType = SubBitmap
		default:
			return nil, fmt.Errorf("%w: dp %d unknown subtype %q", ErrInvalidJSON, d.ID, d.SubType)
		}
	}

	n.pvStat = PVInvalid
	return n, nil
}

// Node returns the node for id, or nil if unknown.
func (s *Schema) Node(id uint8) *Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes[id]
}

// Ack transitions the named dp ids to PVCloud (Spec Section 3.5: "Cloud-ack
// transitions pv_stat from LOCAL to CLOUD"). Unknown ids are ignored; the
// caller already knows which ids it reported.
func (s *Schema) Ack(ids []uint8) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range ids {
		if n, ok := s.nodes[id]; ok {
			n.setPVStat(PVCloud)
		}
	}
}

// Nodes returns the nodes in schema-declaration order.
func (s *Schema) Nodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Node, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.nodes[id])
	}
	return out
}
