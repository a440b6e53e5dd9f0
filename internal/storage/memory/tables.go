package memory

import (
	"context"
	"sort"
	"time"

	"mangrove-indexer/internal/domain"
	"mangrove-indexer/internal/storage"
)

// transactionTable implements storage.TransactionTable over a unit of work.
type transactionTable struct {
	tx *tx
}

var _ storage.TransactionTable = (*transactionTable)(nil)

// Get retrieves a transaction by id. Returns ErrNotFound if not exists.
func (s *transactionTable) Get(_ context.Context, id string) (*domain.Transaction, error) {
	if row, ok := s.tx.txs[id]; ok {
		c := *row
		return &c, nil
	}

	s.tx.db.mu.RLock()
	defer s.tx.db.mu.RUnlock()

	row, ok := s.tx.db.txs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *row
	return &c, nil
}

// InsertIfAbsent inserts t unless a row with the same id is visible.
func (s *transactionTable) InsertIfAbsent(ctx context.Context, t *domain.Transaction) (bool, error) {
	if t == nil || t.ID == "" {
		return false, storage.ErrInvalidInput
	}
	if _, err := s.Get(ctx, t.ID); err == nil {
		return false, nil
	}

	c := *t
	s.tx.txs[t.ID] = &c
	return true, nil
}

// ExistsAtOrAfter reports whether any visible transaction of chainID has Time >= ts.
func (s *transactionTable) ExistsAtOrAfter(_ context.Context, chainID uint64, ts time.Time) (bool, error) {
	match := func(row *domain.Transaction) bool {
		return row.ChainID == chainID && !row.Time.Before(ts)
	}
	for _, row := range s.tx.txs {
		if match(row) {
			return true, nil
		}
	}

	s.tx.db.mu.RLock()
	defer s.tx.db.mu.RUnlock()

	for _, row := range s.tx.db.txs {
		if match(row) {
			return true, nil
		}
	}
	return false, nil
}

// aggregateTable implements storage.AggregateTable for one kind over a unit of work.
type aggregateTable struct {
	tx   *tx
	kind domain.Kind
}

var _ storage.AggregateTable = (*aggregateTable)(nil)

func (s *aggregateTable) state() (*kindState, error) {
	state, ok := s.tx.db.kinds[s.kind]
	if !ok {
		return nil, storage.ErrInvalidInput
	}
	return state, nil
}

func (s *aggregateTable) pendingAggs() map[string]*domain.Aggregate {
	m, ok := s.tx.aggs[s.kind]
	if !ok {
		m = make(map[string]*domain.Aggregate)
		s.tx.aggs[s.kind] = m
	}
	return m
}

func (s *aggregateTable) pendingVersions() map[string]*domain.VersionRecord {
	m, ok := s.tx.vers[s.kind]
	if !ok {
		m = make(map[string]*domain.VersionRecord)
		s.tx.vers[s.kind] = m
	}
	return m
}

// GetAggregate retrieves an aggregate by id. Returns ErrNotFound if not exists.
func (s *aggregateTable) GetAggregate(_ context.Context, id string) (*domain.Aggregate, error) {
	state, err := s.state()
	if err != nil {
		return nil, err
	}
	if a, ok := s.pendingAggs()[id]; ok {
		if a == nil {
			return nil, storage.ErrNotFound
		}
		c := *a
		return &c, nil
	}

	s.tx.db.mu.RLock()
	defer s.tx.db.mu.RUnlock()

	a, ok := state.aggregates[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *a
	return &c, nil
}

// UpsertAggregate creates the aggregate or replaces its row.
func (s *aggregateTable) UpsertAggregate(_ context.Context, a *domain.Aggregate) error {
	if a == nil || a.ID == "" {
		return storage.ErrInvalidInput
	}
	if _, err := s.state(); err != nil {
		return err
	}
	c := *a
	s.pendingAggs()[a.ID] = &c
	return nil
}

// DeleteAggregate removes an aggregate. Returns ErrNotFound if not exists.
func (s *aggregateTable) DeleteAggregate(ctx context.Context, id string) error {
	if _, err := s.GetAggregate(ctx, id); err != nil {
		return err
	}
	s.pendingAggs()[id] = nil
	return nil
}

// ListAggregateIDs returns every visible aggregate id, ordered ASC.
func (s *aggregateTable) ListAggregateIDs(_ context.Context) ([]string, error) {
	state, err := s.state()
	if err != nil {
		return nil, err
	}
	pending := s.pendingAggs()

	s.tx.db.mu.RLock()
	seen := make(map[string]bool, len(state.aggregates)+len(pending))
	for id := range state.aggregates {
		seen[id] = true
	}
	s.tx.db.mu.RUnlock()

	for id, a := range pending {
		seen[id] = a != nil
	}

	var result []string
	for id, ok := range seen {
		if ok {
			result = append(result, id)
		}
	}
	sort.Strings(result)
	return result, nil
}

// GetVersion retrieves a version by id. Returns ErrNotFound if not exists.
func (s *aggregateTable) GetVersion(_ context.Context, id string) (*domain.VersionRecord, error) {
	state, err := s.state()
	if err != nil {
		return nil, err
	}
	if v, ok := s.pendingVersions()[id]; ok {
		if v == nil {
			return nil, storage.ErrNotFound
		}
		return copyVersion(v), nil
	}

	s.tx.db.mu.RLock()
	defer s.tx.db.mu.RUnlock()

	v, ok := state.versions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyVersion(v), nil
}

// InsertVersion adds a version. Returns ErrDuplicateKey if the id is visible.
func (s *aggregateTable) InsertVersion(ctx context.Context, v *domain.VersionRecord) error {
	if v == nil || v.ID == "" || v.AggregateID == "" {
		return storage.ErrInvalidInput
	}
	if _, err := s.GetVersion(ctx, v.ID); err == nil {
		return storage.ErrDuplicateKey
	} else if err != storage.ErrNotFound {
		return err
	}

	s.pendingVersions()[v.ID] = copyVersion(v)
	return nil
}

// DeleteVersion removes a version. Returns ErrNotFound if not exists.
func (s *aggregateTable) DeleteVersion(ctx context.Context, id string) error {
	if _, err := s.GetVersion(ctx, id); err != nil {
		return err
	}

	s.tx.db.mu.RLock()
	_, committed := s.tx.db.kinds[s.kind].versions[id]
	s.tx.db.mu.RUnlock()

	if committed {
		dropped, ok := s.tx.dropped[s.kind]
		if !ok {
			dropped = make(map[string]bool)
			s.tx.dropped[s.kind] = dropped
		}
		dropped[id] = true
	}
	s.pendingVersions()[id] = nil
	return nil
}

// CountVersions returns the number of visible versions of aggregateID.
func (s *aggregateTable) CountVersions(_ context.Context, aggregateID string) (int, error) {
	state, err := s.state()
	if err != nil {
		return 0, err
	}
	pending := s.pendingVersions()

	visible := make(map[string]bool)
	s.tx.db.mu.RLock()
	for id, v := range state.versions {
		if v.AggregateID == aggregateID {
			visible[id] = true
		}
	}
	s.tx.db.mu.RUnlock()

	for id, v := range pending {
		if v == nil {
			delete(visible, id)
		} else if v.AggregateID == aggregateID {
			visible[id] = true
		}
	}
	return len(visible), nil
}

// offsetTable implements storage.OffsetTable over a unit of work.
type offsetTable struct {
	tx *tx
}

var _ storage.OffsetTable = (*offsetTable)(nil)

// Get returns the visible offset of stream. Returns ErrNotFound if never set.
func (s *offsetTable) Get(_ context.Context, stream string) (*storage.StreamOffset, error) {
	if o, ok := s.tx.offsets[stream]; ok {
		c := *o
		return &c, nil
	}

	s.tx.db.mu.RLock()
	defer s.tx.db.mu.RUnlock()

	o, ok := s.tx.db.offsets[stream]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *o
	return &c, nil
}

// Set stores the offset of stream.
func (s *offsetTable) Set(_ context.Context, stream string, offset int64) error {
	if stream == "" {
		return storage.ErrInvalidInput
	}
	s.tx.offsets[stream] = &storage.StreamOffset{
		Stream:    stream,
		Offset:    offset,
		UpdatedAt: s.tx.db.now(),
	}
	return nil
}
