package audit

import (
	"context"
	"path/filepath"
	"testing"
)

func TestJSONLAppendAndTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.jsonl")
	st, err := NewJSONLStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		stage := i
		if err := st.Append(ctx, Record{TS: int64(1000 + i), Type: "setStage", Chain: "primary", ElementID: "floor1", Stage: &stage, TxHash: "0xabc"}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	got, err := st.Tail(ctx, 3)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	// Insertion order, last three.
	for i, r := range got {
		if r.TS != int64(1002+i) {
			t.Fatalf("record %d ts = %d", i, r.TS)
		}
	}

	all, err := st.Tail(ctx, 0)
	if err != nil {
		t.Fatalf("tail all: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 records, got %d", len(all))
	}
}

func TestJSONLTailMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "history.jsonl")
	st, err := NewJSONLStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	got, err := st.Tail(context.Background(), 10)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty tail, got %d", len(got))
	}
}
