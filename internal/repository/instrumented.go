package repository

import (
	"context"
	"errors"
	"time"
)

// StoreRecorder はストレージ操作の計測値を記録する。metrics.Collectorが実装する。
type StoreRecorder interface {
	RecordStoreError(operation string)
	RecordStoreLatency(operation string, duration time.Duration)
}

// InstrumentedStore は操作ごとのレイテンシとバックエンド障害を記録するStoreのデコレーター。
// ErrNotFound・ErrConflictは契約上の結果のため障害として数えない。
type InstrumentedStore struct {
	inner    Store
	recorder StoreRecorder
	now      func() time.Time
}

// NewInstrumentedStore はinnerをラップしたInstrumentedStoreを生成する。
func NewInstrumentedStore(inner Store, recorder StoreRecorder) *InstrumentedStore {
	return &InstrumentedStore{inner: inner, recorder: recorder, now: time.Now}
}

func (s *InstrumentedStore) observe(operation string, start time.Time, err error) {
	s.recorder.RecordStoreLatency(operation, s.now().Sub(start))
	if errors.Is(err, ErrUnavailable) {
		s.recorder.RecordStoreError(operation)
	}
}

func (s *InstrumentedStore) Insert(ctx context.Context, table Table, rec Record) (Record, error) {
	start := s.now()
	out, err := s.inner.Insert(ctx, table, rec)
	s.observe("insert", start, err)
	return out, err
}

func (s *InstrumentedStore) SelectAll(ctx context.Context, table Table) ([]Record, error) {
	start := s.now()
	out, err := s.inner.SelectAll(ctx, table)
	s.observe("select_all", start, err)
	return out, err
}

func (s *InstrumentedStore) SelectByID(ctx context.Context, table Table, id string) (Record, error) {
	start := s.now()
	out, err := s.inner.SelectByID(ctx, table, id)
	s.observe("select_by_id", start, err)
	return out, err
}

func (s *InstrumentedStore) SelectWhere(ctx context.Context, table Table, predicate Record) ([]Record, error) {
	start := s.now()
	out, err := s.inner.SelectWhere(ctx, table, predicate)
	s.observe("select_where", start, err)
	return out, err
}

func (s *InstrumentedStore) Update(ctx context.Context, table Table, id string, partial Record) (Record, error) {
	start := s.now()
	out, err := s.inner.Update(ctx, table, id, partial)
	s.observe("update", start, err)
	return out, err
}

func (s *InstrumentedStore) UpdateIf(ctx context.Context, table Table, id string, expect Record, partial Record) (Record, error) {
	start := s.now()
	out, err := s.inner.UpdateIf(ctx, table, id, expect, partial)
	s.observe("update_if", start, err)
	return out, err
}

func (s *InstrumentedStore) Delete(ctx context.Context, table Table, id string) (bool, error) {
	start := s.now()
	out, err := s.inner.Delete(ctx, table, id)
	s.observe("delete", start, err)
	return out, err
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	start := s.now()
	err := s.inner.Ping(ctx)
	s.observe("ping", start, err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}

var _ Store = (*InstrumentedStore)(nil)
