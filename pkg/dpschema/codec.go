package dpschema

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// Envelope wraps a report payload with the optional header fields of
// Spec Section 4.2 ("Optional header wrap").
type Envelope struct {
	DeviceID string
	Time     *int64
	Seq      *uint32
	Kind     string
}

// Report filters and encodes dps into a compact `{"<id>":<value>}` JSON
// object (Spec Section 4.2 report()). Nodes whose value is unchanged from
// the cache are dropped unless flags carries FlagNoFilter or the node's
// trigger is Direct or kind is ReportStat. Surviving nodes transition to
// PVLocal. A nil payload (no survivors) is a valid, non-error result.
func (s *Schema) Report(kind ReportKind, dps []DPValue, flags ReportFlags) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any)
	for _, dp := range dps {
		n, ok := s.nodes[dp.ID]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownDP, dp.ID)
		}
		if n.Type != NodeOBJ {
			return nil, fmt.Errorf("%w: dp %d is not reportable via Report", ErrTypeMismatch, dp.ID)
		}

		n.mu.Lock()
		encoded, changed, err := n.encodeValue(dp.Value)
		if err != nil {
			n.mu.Unlock()
			return nil, err
		}

		survive := !n.suppressedLocked() &&
			(n.pvStat == PVInvalid ||
				n.Trigger == TriggerDirect ||
				kind == ReportStat ||
				flags&FlagNoFilter != 0 ||
				changed)
		if survive {
			n.pvStat = PVLocal
		}
		n.mu.Unlock()

		if !survive {
			continue
		}
		out[strconv.Itoa(int(dp.ID))] = encoded
	}

	if len(out) == 0 {
		return nil, nil
	}
	return json.Marshal(out)
}

// WrapReport wraps a dps payload built by Report with the optional header
// fields: `{"dps":<obj>,"devId":"<id>"[,"t":<time>][,"seq":<n>][,"type":"<str>"]}`.
func WrapReport(dpsJSON []byte, env Envelope) ([]byte, error) {
	var dps json.RawMessage = dpsJSON
	if dps == nil {
		dps = json.RawMessage("{}")
	}
	wrapper := map[string]any{
		"dps":   dps,
		"devId": env.DeviceID,
	}
	if env.Time != nil {
		wrapper["t"] = *env.Time
	}
	if env.Seq != nil {
		wrapper["seq"] = *env.Seq
	}
	if env.Kind != "" {
		wrapper["type"] = env.Kind
	}
	return json.Marshal(wrapper)
}

// encodeValue type/range-checks value against the node's sub-type, updates
// the cached value, and returns the JSON-ready representation plus whether
// the value differs from the prior cache (used by the report filter). The
// caller holds n.mu.
func (n *Node) encodeValue(value any) (any, bool, error) {
	switch n.SubType {
	case SubBool:
		v, ok := value.(bool)
		if !ok {
			return nil, false, fmt.Errorf("%w: dp %d expects bool", ErrTypeMismatch, n.ID)
		}
		changed := n.boolVal != v
		n.boolVal = v
		return v, changed, nil

	case SubInt:
		v, err := toInt64(value)
		if err != nil {
			return nil, false, fmt.Errorf("%w: dp %d: %v", ErrTypeMismatch, n.ID, err)
		}
		if (n.IntMax != 0 || n.IntMin != 0) && (v < n.IntMin || v > n.IntMax) {
			return nil, false, fmt.Errorf("%w: dp %d value %d outside [%d,%d]", ErrOutOfRange, n.ID, v, n.IntMin, n.IntMax)
		}
		changed := n.intVal != v
		n.intVal = v
		return v, changed, nil

	case SubString:
		v, ok := value.(string)
		if !ok {
			return nil, false, fmt.Errorf("%w: dp %d expects string", ErrTypeMismatch, n.ID)
		}
		if n.StrMaxLen > 0 && len(v) > n.StrMaxLen {
			return nil, false, fmt.Errorf("%w: dp %d string exceeds maxlen %d", ErrOutOfRange, n.ID, n.StrMaxLen)
		}
		changed := n.strVal != v
		n.strVal = v
		return v, changed, nil

	case SubEnum:
		idx, str, err := n.resolveEnum(value)
		if err != nil {
			return nil, false, err
		}
		changed := n.enumIdx != idx
		n.enumIdx = idx
		return str, changed, nil

	case SubBitmap:
		v, err := toUint32(value)
		if err != nil {
			return nil, false, fmt.Errorf("%w: dp %d: %v", ErrTypeMismatch, n.ID, err)
		}
		changed := n.bitmapVal != v
		n.bitmapVal = v
		return v, changed, nil

	default:
		return nil, false, fmt.Errorf("%w: dp %d has no OBJ sub-type", ErrTypeMismatch, n.ID)
	}
}

func (n *Node) resolveEnum(value any) (int, string, error) {
	switch v := value.(type) {
	case string:
		for i, s := range n.EnumValues {
			if s == v {
				return i, s, nil
			}
		}
		return 0, "", fmt.Errorf("%w: dp %d value %q", ErrUnknownEnum, n.ID, v)
	case float64:
		i := int(v)
		if i < 0 || i >= len(n.EnumValues) {
			return 0, "", fmt.Errorf("%w: dp %d index %d", ErrUnknownEnum, n.ID, i)
		}
		return i, n.EnumValues[i], nil
	default:
		return 0, "", fmt.Errorf("%w: dp %d enum must be string or index", ErrTypeMismatch, n.ID)
	}
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case float64:
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("not a number: %T", value)
	}
}

func toUint32(value any) (uint32, error) {
	i, err := toInt64(value)
	if err != nil {
		return 0, err
	}
	return uint32(i), nil
}

// Dispatch decodes an inbound command JSON payload of the shape
// `{"dps":{"<id>":<value>,...}}` against this schema (Spec Section 4.2
// dispatch()). RAW dps (base64-encoded JSON strings) are emitted
// individually; all surviving OBJ dps are merged into a single ObjEvent.
// Every touched node transitions to PVLocal.
func (s *Schema) Dispatch(body []byte) (*ObjEvent, []RawEvent, error) {
	var req struct {
		Dps map[string]json.RawMessage `json:"dps"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if req.Dps == nil {
		return nil, nil, fmt.Errorf("%w: missing dps", ErrInvalidJSON)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	obj := &ObjEvent{DeviceID: s.DeviceID, Values: make(map[uint8]any)}
	var raws []RawEvent

	for key, raw := range req.Dps {
		idInt, err := strconv.Atoi(key)
		if err != nil || idInt < 0 || idInt > 255 {
			return nil, nil, fmt.Errorf("%w: bad dp id %q", ErrInvalidJSON, key)
		}
		id := uint8(idInt)
		n, ok := s.nodes[id]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %d", ErrUnknownDP, id)
		}
		if !n.Writable() {
			return nil, nil, fmt.Errorf("%w: dp %d", ErrWriteToReadOnly, id)
		}

		if n.Type == NodeRAW {
			var encoded string
			if err := json.Unmarshal(raw, &encoded); err != nil {
				return nil, nil, fmt.Errorf("%w: dp %d raw must be base64 string", ErrTypeMismatch, id)
			}
			data, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: dp %d: %v", ErrInvalidJSON, id, err)
			}
			n.setPVStat(PVLocal)
			raws = append(raws, RawEvent{DeviceID: s.DeviceID, ID: id, Data: data})
			continue
		}

		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, nil, fmt.Errorf("%w: dp %d: %v", ErrInvalidJSON, id, err)
		}
		n.mu.Lock()
		_, _, err = n.encodeValue(value)
		n.mu.Unlock()
		if err != nil {
			return nil, nil, err
		}
		n.setPVStat(PVLocal)
		obj.Values[id] = value
	}

	if len(obj.Values) == 0 {
		obj = nil
	}
	return obj, raws, nil
}

// Query builds the current cached value of every readable OBJ dp (Spec
// Section 4.2 "Query response"). A dp whose passive state is PASSIVE_TRUE
// is being read for the first time here, so it transitions to
// PASSIVE_FALSE_ONCE and future report() calls for it are no longer
// suppressed (Spec Section 3.5).
func (s *Schema) Query() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any)
	for _, id := range s.order {
		n := s.nodes[id]
		if n.Type != NodeOBJ || !n.Readable() {
			continue
		}
		n.clearPassiveOnQuery()
		out[strconv.Itoa(int(id))] = n.currentValue()
	}
	return json.Marshal(out)
}

// currentValue returns the node's cached value in its JSON-ready form.
func (n *Node) currentValue() any {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch n.SubType {
	case SubBool:
		return n.boolVal
	case SubInt:
		return n.intVal
	case SubString:
		return n.strVal
	case SubEnum:
		if n.enumIdx >= 0 && n.enumIdx < len(n.EnumValues) {
			return n.EnumValues[n.enumIdx]
		}
		return ""
	case SubBitmap:
		return n.bitmapVal
	default:
		return nil
	}
}

// PendingReport builds a dps JSON body and the matching id list for every
// readable OBJ dp whose pv_stat has not yet reached PVCloud (Spec Section
// 3.5: "A sync worker periodically re-emits all non-CLOUD DPs"). A nil body
// means nothing is pending.
func (s *Schema) PendingReport() ([]byte, []uint8, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any)
	var ids []uint8
	for _, id := range s.order {
		n := s.nodes[id]
		if n.Type != NodeOBJ || !n.Readable() || n.PVStat() == PVCloud || n.Passive() == PassiveTrue {
			continue
		}
		out[strconv.Itoa(int(id))] = n.currentValue()
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, nil, nil
	}
	body, err := json.Marshal(out)
	return body, ids, err
}
