package table

import (
	"testing"
)

func newTestTable() *Table {
	return New([]ColumnDescriptor{
		{Name: "a", Kind: Int},
		{Name: "b", Kind: Text},
	})
}

func TestAddRecordAndCursorExactCount(t *testing.T) {
	tb := newTestTable()
	rows := []map[string]any{
		{"a": int64(1), "b": "one"},
		{"a": int64(2), "b": "two"},
		{"a": int64(3)}, // missing b
	}
	for _, r := range rows {
		if err := tb.AddRecord(r, AddRecordOptions{}); err != nil {
			t.Fatalf("AddRecord: %v", err)
		}
	}

	cur, err := tb.GetCursor("a", 0)
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}
	var got []any
	for {
		v, ok, err := cur.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, v)
	}
	if len(got) != 3 {
		t.Fatalf("expected exactly 3 values from cursor, got %d", len(got))
	}
	if got[0] != int64(1) || got[1] != int64(2) || got[2] != int64(3) {
		t.Fatalf("unexpected values: %v", got)
	}

	curB, err := tb.GetCursor("b", 0)
	if err != nil {
		t.Fatalf("GetCursor(b): %v", err)
	}
	var gotB []any
	for {
		v, ok, err := curB.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		gotB = append(gotB, v)
	}
	if len(gotB) != 3 {
		t.Fatalf("expected exactly 3 values for column b, got %d", len(gotB))
	}
	if gotB[0] != "one" || gotB[1] != "two" || gotB[2] != nil {
		t.Fatalf("unexpected b values: %v", gotB)
	}
}

func TestAddRecordMidSequenceUndefinedGap(t *testing.T) {
	tb := newTestTable()
	rows := []map[string]any{
		{"a": int64(1), "b": "one"},
		{"a": int64(2)}, // b missing here
		{"a": int64(3), "b": "three"},
	}
	for _, r := range rows {
		if err := tb.AddRecord(r, AddRecordOptions{}); err != nil {
			t.Fatalf("AddRecord: %v", err)
		}
	}
	cur, err := tb.GetCursor("b", 0)
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}
	var got []any
	for {
		v, ok, err := cur.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, v)
	}
	if len(got) != 3 || got[0] != "one" || got[1] != nil || got[2] != "three" {
		t.Fatalf("unexpected values: %v", got)
	}
}

func TestGetMultiCursorFilter(t *testing.T) {
	tb := newTestTable()
	rows := []map[string]any{
		{"a": int64(1), "b": "keep"},
		{"a": int64(2), "b": "drop"},
		{"a": int64(3), "b": "keep"},
	}
	for _, r := range rows {
		if err := tb.AddRecord(r, AddRecordOptions{}); err != nil {
			t.Fatalf("AddRecord: %v", err)
		}
	}
	filter := func(first any) bool { return first.(int64)%2 == 1 }
	got, err := tb.GetMultiCursor([]string{"a", "b"}, filter)
	if err != nil {
		t.Fatalf("GetMultiCursor: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows accepted by filter, got %d", len(got))
	}
	if got[0].Values[0] != int64(1) || got[0].Values[1] != "keep" {
		t.Fatalf("unexpected first row: %v", got[0].Values)
	}
	if got[1].Values[0] != int64(3) || got[1].Values[1] != "keep" {
		t.Fatalf("unexpected second row: %v", got[1].Values)
	}
}

// TestImportScenarioSeed mirrors spec §8 scenario 6: two tabular snapshots
// A={ab,a} and B={ab,b} imported into one table yield cursors that iterate
// A's rows then B's, with missing-column fields reporting undefined.
func TestImportScenarioSeed(t *testing.T) {
	a := New([]ColumnDescriptor{{Name: "ab", Kind: Text}, {Name: "a", Kind: Text}})
	if err := a.AddRecord(map[string]any{"ab": "row-ab-1", "a": "row-a-1"}, AddRecordOptions{}); err != nil {
		t.Fatalf("AddRecord A: %v", err)
	}

	b := New([]ColumnDescriptor{{Name: "ab", Kind: Text}, {Name: "b", Kind: Text}})
	if err := b.AddRecord(map[string]any{"ab": "row-ab-2", "b": "row-b-1"}, AddRecordOptions{}); err != nil {
		t.Fatalf("AddRecord B: %v", err)
	}

	merged := New([]ColumnDescriptor{{Name: "ab", Kind: Text}})
	if err := merged.Import(a.Export()); err != nil {
		t.Fatalf("Import A: %v", err)
	}
	if err := merged.Import(b.Export()); err != nil {
		t.Fatalf("Import B: %v", err)
	}

	if merged.Len() != 2 {
		t.Fatalf("expected 2 merged rows, got %d", merged.Len())
	}

	curAB, err := merged.GetCursor("ab", 0)
	if err != nil {
		t.Fatalf("GetCursor(ab): %v", err)
	}
	v0, _, _ := curAB.Next()
	v1, _, _ := curAB.Next()
	if v0 != "row-ab-1" || v1 != "row-ab-2" {
		t.Fatalf("expected A's row then B's row, got %v, %v", v0, v1)
	}

	curA, err := merged.GetCursor("a", 0)
	if err != nil {
		t.Fatalf("GetCursor(a): %v", err)
	}
	av0, _, _ := curA.Next()
	av1, _, _ := curA.Next()
	if av0 != "row-a-1" || av1 != nil {
		t.Fatalf("expected A's value then undefined, got %v, %v", av0, av1)
	}

	curB, err := merged.GetCursor("b", 0)
	if err != nil {
		t.Fatalf("GetCursor(b): %v", err)
	}
	bv0, _, _ := curB.Next()
	bv1, _, _ := curB.Next()
	if bv0 != nil || bv1 != "row-b-1" {
		t.Fatalf("expected undefined then B's value, got %v, %v", bv0, bv1)
	}
}

func TestNestedKeyFlattening(t *testing.T) {
	tb := New([]ColumnDescriptor{{Name: "user.name", Kind: Text}})
	row := map[string]any{"user": map[string]any{"name": "ada"}}
	if err := tb.AddRecord(row, AddRecordOptions{RecursionLevel: 1}); err != nil {
		t.Fatalf("AddRecord: %v", err)
	}
	cur, err := tb.GetCursor("user.name", 0)
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}
	v, _, _ := cur.Next()
	if v != "ada" {
		t.Fatalf("got %v, want \"ada\"", v)
	}
}

func TestOnMissingColumnCreatesColumn(t *testing.T) {
	tb := New([]ColumnDescriptor{{Name: "a", Kind: Int}})
	called := false
	opts := AddRecordOptions{
		OnMissingColumn: func(path string, value any) (ColumnDescriptor, bool) {
			called = true
			return ColumnDescriptor{Name: path, Kind: Text}, true
		},
	}
	if err := tb.AddRecord(map[string]any{"a": int64(1), "extra": "field"}, opts); err != nil {
		t.Fatalf("AddRecord: %v", err)
	}
	if !called {
		t.Fatalf("OnMissingColumn was never invoked")
	}
	cur, err := tb.GetCursor("extra", 0)
	if err != nil {
		t.Fatalf("GetCursor(extra): %v", err)
	}
	v, _, _ := cur.Next()
	if v != "field" {
		t.Fatalf("got %v, want \"field\"", v)
	}
}

func TestFixedColumnRoundTrip(t *testing.T) {
	tb := New([]ColumnDescriptor{{Name: "price", Kind: Fixed, Precision: 2}})
	if err := tb.AddRecord(map[string]any{"price": 19.99}, AddRecordOptions{}); err != nil {
		t.Fatalf("AddRecord: %v", err)
	}
	cur, err := tb.GetCursor("price", 0)
	if err != nil {
		t.Fatalf("GetCursor: %v", err)
	}
	v, _, _ := cur.Next()
	f, ok := v.(float64)
	if !ok {
		t.Fatalf("expected float64, got %T", v)
	}
	if diff := f - 19.99; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("got %v, want 19.99", f)
	}
}
