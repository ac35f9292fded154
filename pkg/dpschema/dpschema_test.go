package dpschema

import (
	"encoding/json"
	"testing"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	doc := `[
		{"id":1,"type":"obj","subtype":"bool","mode":"rw","trigger":"pulse"},
		{"id":2,"type":"obj","subtype":"int","mode":"rw","trigger":"pulse","min":0,"max":100},
		{"id":3,"type":"obj","subtype":"string","mode":"ro","trigger":"direct"},
		{"id":4,"type":"obj","subtype":"enum","mode":"rw","enum":["low","mid","high"]},
		{"id":9,"type":"raw","mode":"wr"}
	]`
	s, err := Parse("dev-1", []byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return s
}

// TestReportPulseFilterSuppressesUnchanged covers Spec Section 8 invariant 6:
// a PULSE-trigger dp reported twice with the same value is emitted once.
func TestReportPulseFilterSuppressesUnchanged(t *testing.T) {
	s := testSchema(t)

	out, err := s.Report(ReportOBJ, []DPValue{{ID: 1, Value: true}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if out == nil {
		t.Fatal("first report of a never-seen dp must survive (pv_stat invalid)")
	}

	out2, err := s.Report(ReportOBJ, []DPValue{{ID: 1, Value: true}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if out2 != nil {
		t.Fatalf("repeated identical PULSE value should be filtered, got %s", out2)
	}

	out3, err := s.Report(ReportOBJ, []DPValue{{ID: 1, Value: false}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if out3 == nil {
		t.Fatal("changed value must survive the filter")
	}
}

// TestReportDirectTriggerAlwaysSurvives covers Spec Section 8 invariant 7:
// a DIRECT-trigger dp is reported every time regardless of whether the
// value changed.
func TestReportDirectTriggerAlwaysSurvives(t *testing.T) {
	s := testSchema(t)

	if _, err := s.Report(ReportOBJ, []DPValue{{ID: 3, Value: "on"}}, 0); err != nil {
		t.Fatal(err)
	}

	out, err := s.Report(ReportOBJ, []DPValue{{ID: 3, Value: "on"}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if out == nil {
		t.Fatal("unchanged DIRECT dp id=3 must survive the second identical report")
	}
}

func TestReportNoFilterFlagBypassesSuppression(t *testing.T) {
	s := testSchema(t)

	if _, err := s.Report(ReportOBJ, []DPValue{{ID: 1, Value: true}}, 0); err != nil {
		t.Fatal(err)
	}
	out, err := s.Report(ReportOBJ, []DPValue{{ID: 1, Value: true}}, FlagNoFilter)
	if err != nil {
		t.Fatal(err)
	}
	if out == nil {
		t.Fatal("FlagNoFilter must bypass the unchanged-value filter")
	}
}

func TestReportStatKindBypassesSuppression(t *testing.T) {
	s := testSchema(t)

	if _, err := s.Report(ReportOBJ, []DPValue{{ID: 1, Value: true}}, 0); err != nil {
		t.Fatal(err)
	}
	out, err := s.Report(ReportStat, []DPValue{{ID: 1, Value: true}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if out == nil {
		t.Fatal("ReportStat kind must bypass the unchanged-value filter")
	}
}

func TestReportOutOfRangeRejected(t *testing.T) {
	s := testSchema(t)
	_, err := s.Report(ReportOBJ, []DPValue{{ID: 2, Value: float64(500)}}, 0)
	if err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestReportEnumEncodesAsString(t *testing.T) {
	s := testSchema(t)
	out, err := s.Report(ReportOBJ, []DPValue{{ID: 4, Value: "mid"}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]string
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["4"] != "mid" {
		t.Fatalf("expected enum string mid, got %v", decoded)
	}
}

func TestDispatchObjAndRaw(t *testing.T) {
	s := testSchema(t)
	body := []byte(`{"dps":{"1":true,"9":"aGVsbG8="}}`)

	obj, raws, err := s.Dispatch(body)
	if err != nil {
		t.Fatal(err)
	}
	if obj == nil || obj.Values[1] != true {
		t.Fatalf("expected obj event with dp 1 = true, got %#v", obj)
	}
	if len(raws) != 1 || string(raws[0].Data) != "hello" {
		t.Fatalf("expected raw event decoding to 'hello', got %#v", raws)
	}
}

func TestDispatchRejectsWriteToReadOnly(t *testing.T) {
	s := testSchema(t)
	body := []byte(`{"dps":{"3":"nope"}}`)
	if _, _, err := s.Dispatch(body); err == nil {
		t.Fatal("expected ErrWriteToReadOnly")
	}
}

func TestQueryReturnsReadableOBJDPs(t *testing.T) {
	s := testSchema(t)
	if _, err := s.Report(ReportOBJ, []DPValue{{ID: 1, Value: true}}, 0); err != nil {
		t.Fatal(err)
	}
	out, err := s.Query()
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatal(err)
	}
	if _, ok := decoded["9"]; ok {
		t.Fatal("Query must not include RAW dps")
	}
	if decoded["1"] != true {
		t.Fatalf("expected dp 1 = true in query, got %#v", decoded)
	}
}

// TestPassiveTrueSuppressesUploadUntilFirstQuery covers Spec Section 3.5:
// a PASSIVE_TRUE dp's report() is suppressed until the dp is queried, at
// which point it transitions to PASSIVE_FALSE_ONCE and reports normally.
func TestPassiveTrueSuppressesUploadUntilFirstQuery(t *testing.T) {
	doc := `[{"id":5,"type":"obj","subtype":"bool","mode":"rw","trigger":"direct","passive":"true"}]`
	s, err := Parse("dev-1", []byte(doc))
	if err != nil {
		t.Fatal(err)
	}

	out, err := s.Report(ReportOBJ, []DPValue{{ID: 5, Value: true}}, FlagNoFilter)
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Fatalf("passive dp must not upload before its first query, got %s", out)
	}
	if s.Node(5).PVStat() == PVLocal {
		t.Fatal("a suppressed report must not mark pv_stat LOCAL")
	}

	if _, err := s.Query(); err != nil {
		t.Fatal(err)
	}
	if got := s.Node(5).Passive(); got != PassiveFalseOnce {
		t.Fatalf("expected passive to transition to FALSE_ONCE after first query, got %v", got)
	}

	out2, err := s.Report(ReportOBJ, []DPValue{{ID: 5, Value: false}}, FlagNoFilter)
	if err != nil {
		t.Fatal(err)
	}
	if out2 == nil {
		t.Fatal("report must resume once passive has transitioned past TRUE")
	}
}

// TestPassiveTrueSuppressesSyncWorkerReplay covers the same suppression for
// the dispatch façade's periodic re-emit (PendingReport), not just Report.
func TestPassiveTrueSuppressesSyncWorkerReplay(t *testing.T) {
	doc := `[{"id":6,"type":"obj","subtype":"bool","mode":"rw","trigger":"direct","passive":"true"}]`
	s, err := Parse("dev-1", []byte(doc))
	if err != nil {
		t.Fatal(err)
	}

	body, ids, err := s.PendingReport()
	if err != nil {
		t.Fatal(err)
	}
	if body != nil || len(ids) != 0 {
		t.Fatalf("passive dp must not appear in a pending-report replay before its first query, got %s", body)
	}
}
