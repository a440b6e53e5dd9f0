package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"mangrove-indexer/internal/domain"
	"mangrove-indexer/internal/storage"
)

// DB is an in-memory implementation of storage.DB.
//
// Every unit of work buffers its writes in a private overlay and publishes them on
// commit. Reads go through the overlay first and fall back to committed state, which
// gives read committed semantics: a unit of work sees its own writes and whatever
// other units of work committed meanwhile.
type DB struct {
	mu      sync.RWMutex
	txs     map[string]*domain.Transaction
	kinds   map[domain.Kind]*kindState
	offsets map[string]*storage.StreamOffset
	now     func() time.Time
}

type kindState struct {
	aggregates map[string]*domain.Aggregate
	versions   map[string]*domain.VersionRecord
}

// NewDB creates an empty in-memory database.
func NewDB() *DB {
	db := &DB{
		txs:     make(map[string]*domain.Transaction),
		kinds:   make(map[domain.Kind]*kindState),
		offsets: make(map[string]*storage.StreamOffset),
		now:     time.Now,
	}
	for _, k := range domain.Kinds {
		db.kinds[k] = &kindState{
			aggregates: make(map[string]*domain.Aggregate),
			versions:   make(map[string]*domain.VersionRecord),
		}
	}
	return db
}

// Verify interface compliance at compile time.
var _ storage.DB = (*DB)(nil)

// WithinTx runs fn inside one unit of work.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := newTx(db)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

// Snapshot is a copy of the committed rows of one aggregate kind, ordered by id.
type Snapshot struct {
	Aggregates []domain.Aggregate
	Versions   []domain.VersionRecord
}

// Snapshot returns the committed rows of kind.
func (db *DB) Snapshot(kind domain.Kind) Snapshot {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var snap Snapshot
	state, ok := db.kinds[kind]
	if !ok {
		return snap
	}
	for _, a := range state.aggregates {
		snap.Aggregates = append(snap.Aggregates, *a)
	}
	for _, v := range state.versions {
		snap.Versions = append(snap.Versions, *copyVersion(v))
	}
	sort.Slice(snap.Aggregates, func(i, j int) bool {
		return snap.Aggregates[i].ID < snap.Aggregates[j].ID
	})
	sort.Slice(snap.Versions, func(i, j int) bool {
		return snap.Versions[i].ID < snap.Versions[j].ID
	})
	return snap
}

// TransactionCount returns the number of committed ledger rows.
func (db *DB) TransactionCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.txs)
}

// tx buffers the writes of one unit of work. A nil map value marks a deletion.
// dropped records committed versions deleted by this unit of work, so that a
// version re-inserted under the same id replaces the row instead of conflicting.
type tx struct {
	db      *DB
	txs     map[string]*domain.Transaction
	aggs    map[domain.Kind]map[string]*domain.Aggregate
	vers    map[domain.Kind]map[string]*domain.VersionRecord
	dropped map[domain.Kind]map[string]bool
	offsets map[string]*storage.StreamOffset
}

func newTx(db *DB) *tx {
	return &tx{
		db:      db,
		txs:     make(map[string]*domain.Transaction),
		aggs:    make(map[domain.Kind]map[string]*domain.Aggregate),
		vers:    make(map[domain.Kind]map[string]*domain.VersionRecord),
		dropped: make(map[domain.Kind]map[string]bool),
		offsets: make(map[string]*storage.StreamOffset),
	}
}

func (t *tx) Transactions() storage.TransactionTable {
	return &transactionTable{tx: t}
}

func (t *tx) Aggregates(kind domain.Kind) storage.AggregateTable {
	return &aggregateTable{tx: t, kind: kind}
}

func (t *tx) Offsets() storage.OffsetTable {
	return &offsetTable{tx: t}
}

// commit publishes the overlay. Versions inserted concurrently under the same id by
// another unit of work abort the commit with ErrDuplicateKey.
func (t *tx) commit() error {
	db := t.db
	db.mu.Lock()
	defer db.mu.Unlock()

	for kind, pending := range t.vers {
		state := db.kinds[kind]
		for id, v := range pending {
			if v == nil || t.dropped[kind][id] {
				continue
			}
			if _, exists := state.versions[id]; exists {
				return storage.ErrDuplicateKey
			}
		}
	}

	for id, row := range t.txs {
		if _, exists := db.txs[id]; !exists {
			db.txs[id] = row
		}
	}
	for kind, ids := range t.dropped {
		for id := range ids {
			delete(db.kinds[kind].versions, id)
		}
	}
	for kind, pending := range t.vers {
		state := db.kinds[kind]
		for id, v := range pending {
			if v == nil {
				delete(state.versions, id)
			} else {
				state.versions[id] = v
			}
		}
	}
	for kind, pending := range t.aggs {
		state := db.kinds[kind]
		for id, a := range pending {
			if a == nil {
				delete(state.aggregates, id)
			} else {
				state.aggregates[id] = a
			}
		}
	}
	for stream, o := range t.offsets {
		db.offsets[stream] = o
	}
	return nil
}

func copyVersion(v *domain.VersionRecord) *domain.VersionRecord {
	c := *v
	if v.PrevVersionID != nil {
		prev := *v.PrevVersionID
		c.PrevVersionID = &prev
	}
	c.Fields = append([]byte(nil), v.Fields...)
	return &c
}
