package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type mockStoreRecorder struct {
	errors    []string
	latencies map[string]time.Duration
}

func (m *mockStoreRecorder) RecordStoreError(operation string) {
	m.errors = append(m.errors, operation)
}

func (m *mockStoreRecorder) RecordStoreLatency(operation string, d time.Duration) {
	if m.latencies == nil {
		m.latencies = map[string]time.Duration{}
	}
	m.latencies[operation] += d
}

// failingStore は全操作がバックエンド障害になるStore。
type failingStore struct {
	Store
}

func (failingStore) SelectAll(context.Context, Table) ([]Record, error) {
	return nil, fmt.Errorf("local store: %w: %w", ErrUnavailable, errors.New("disk I/O error"))
}

func (failingStore) Ping(context.Context) error {
	return fmt.Errorf("local store: %w", ErrUnavailable)
}

func TestInstrumentedStore_RecordsLatencyPerOperation(t *testing.T) {
	inner, err := OpenLocalStore(":memory:")
	if err != nil {
		t.Fatalf("OpenLocalStore returned error: %v", err)
	}
	rec := &mockStoreRecorder{}
	store := NewInstrumentedStore(inner, rec)
	defer store.Close()

	// 1操作ごとに1秒進む時計
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ticks := 0
	store.now = func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}

	ctx := context.Background()
	created, err := store.Insert(ctx, TableSections, Record{"name": "Cultura", "sort_order": 1, "active": true})
	if err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	id := String(created, FieldID)
	if _, err := store.SelectByID(ctx, TableSections, id); err != nil {
		t.Fatalf("SelectByID returned error: %v", err)
	}
	// 契約上のNotFound・Conflictは障害ではない
	if _, err := store.SelectByID(ctx, TableSections, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SelectByID(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := store.UpdateIf(ctx, TableSections, id, Record{"name": "Otra"}, Record{"active": false}); !errors.Is(err, ErrConflict) {
		t.Fatalf("UpdateIf error = %v, want ErrConflict", err)
	}
	if _, err := store.Delete(ctx, TableSections, id); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	want := map[string]time.Duration{
		"insert":       time.Second,
		"select_by_id": 2 * time.Second,
		"update_if":    time.Second,
		"delete":       time.Second,
	}
	if diff := cmp.Diff(want, rec.latencies); diff != "" {
		t.Errorf("latencies mismatch (-want +got):\n%s", diff)
	}
	if len(rec.errors) != 0 {
		t.Errorf("errors = %v, want none", rec.errors)
	}
}

func TestInstrumentedStore_RecordsUnavailable(t *testing.T) {
	rec := &mockStoreRecorder{}
	store := NewInstrumentedStore(failingStore{}, rec)
	ctx := context.Background()

	if _, err := store.SelectAll(ctx, TableArticles); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("SelectAll error = %v, want ErrUnavailable", err)
	}
	if err := store.Ping(ctx); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Ping error = %v, want ErrUnavailable", err)
	}

	if diff := cmp.Diff([]string{"select_all", "ping"}, rec.errors); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
}
