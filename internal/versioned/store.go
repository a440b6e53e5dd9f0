// Package versioned keeps append-only chains of immutable versions per aggregate.
//
// Every change appends a version linked to its predecessor and moves the aggregate's
// current pointer; undoing a change removes the newest version and moves the pointer
// back. Domain code never has to know how to invert a change, because the previous
// version already holds the prior field values.
package versioned

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mangrove-indexer/internal/domain"
	"mangrove-indexer/internal/ids"
	"mangrove-indexer/internal/storage"
)

// Spec describes one aggregate kind.
type Spec[F any] struct {
	Kind domain.Kind

	// Initial returns the fields version 0 is derived from.
	Initial func() F
}

// Store is the versioned store of one kind, seen through one unit of work.
// Isolation between concurrent appends comes from the unit of work; the store
// takes no locks of its own.
type Store[F any] struct {
	table storage.AggregateTable
	spec  Spec[F]
}

// New binds a store to table, usually tx.Aggregates(spec.Kind).
func New[F any](table storage.AggregateTable, spec Spec[F]) *Store[F] {
	return &Store[F]{table: table, spec: spec}
}

// Append derives a new version of id from its current version with patch and makes
// it current. A missing aggregate is created with version 0, derived from the kind's
// initial fields.
func (s *Store[F]) Append(ctx context.Context, id ids.AggregateID, txID string, patch domain.Patch[F]) (*domain.Aggregate, *domain.Version[F], error) {
	key := id.Key()

	next := &domain.Version[F]{AggregateID: key, TxID: txID}
	var prev F

	agg, err := s.table.GetAggregate(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		agg = &domain.Aggregate{ID: key, ChainID: uint64(id.Chain), Address: id.Address}
		prev = s.spec.Initial()
	case err != nil:
		return nil, nil, fmt.Errorf("get %s %s: %w", s.spec.Kind, key, err)
	default:
		current, err := s.loadCurrent(ctx, agg)
		if err != nil {
			return nil, nil, err
		}
		prev = current.Fields
		prevID := current.ID
		next.VersionNumber = current.VersionNumber + 1
		next.PrevVersionID = &prevID
	}

	next.ID = ids.VersionID(key, next.VersionNumber)
	next.Fields = patch.Apply(prev)

	record, err := encode(next)
	if err != nil {
		return nil, nil, fmt.Errorf("encode %s version %s: %w", s.spec.Kind, next.ID, err)
	}
	if err := s.table.InsertVersion(ctx, record); err != nil {
		return nil, nil, fmt.Errorf("insert %s version %s: %w", s.spec.Kind, next.ID, err)
	}

	agg.CurrentVersionID = next.ID
	if err := s.table.UpsertAggregate(ctx, agg); err != nil {
		return nil, nil, fmt.Errorf("upsert %s %s: %w", s.spec.Kind, key, err)
	}

	return agg, next, nil
}

// Rollback removes the current version of id, exactly inverting the last Append.
// Rolling back version 0 deletes the aggregate. Returns storage.ErrNotFound when the
// aggregate does not exist and storage.ErrInconsistentState when its current version
// cannot be loaded.
func (s *Store[F]) Rollback(ctx context.Context, id ids.AggregateID) error {
	key := id.Key()

	agg, err := s.table.GetAggregate(ctx, key)
	if err != nil {
		return fmt.Errorf("rollback %s %s: %w", s.spec.Kind, key, err)
	}
	current, err := s.loadCurrent(ctx, agg)
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}

	if err := s.table.DeleteVersion(ctx, current.ID); err != nil {
		return fmt.Errorf("delete %s version %s: %w", s.spec.Kind, current.ID, err)
	}

	if current.PrevVersionID == nil {
		if err := s.table.DeleteAggregate(ctx, key); err != nil {
			return fmt.Errorf("delete %s %s: %w", s.spec.Kind, key, err)
		}
		return nil
	}

	agg.CurrentVersionID = *current.PrevVersionID
	if err := s.table.UpsertAggregate(ctx, agg); err != nil {
		return fmt.Errorf("repoint %s %s: %w", s.spec.Kind, key, err)
	}
	return nil
}

// Current returns the aggregate id and its current version.
func (s *Store[F]) Current(ctx context.Context, id ids.AggregateID) (*domain.Aggregate, *domain.Version[F], error) {
	key := id.Key()

	agg, err := s.table.GetAggregate(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("get %s %s: %w", s.spec.Kind, key, err)
	}
	current, err := s.loadCurrent(ctx, agg)
	if err != nil {
		return nil, nil, err
	}
	return agg, current, nil
}

// History returns the version chain of id from the current version down to version 0.
// Gaps, cycles and numbering errors are reported as storage.ErrInconsistentState.
func (s *Store[F]) History(ctx context.Context, id ids.AggregateID) ([]*domain.Version[F], error) {
	return s.HistoryByKey(ctx, id.Key())
}

// HistoryByKey is History for an already encoded aggregate key.
func (s *Store[F]) HistoryByKey(ctx context.Context, key string) ([]*domain.Version[F], error) {
	agg, err := s.table.GetAggregate(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", s.spec.Kind, key, err)
	}

	var chain []*domain.Version[F]
	seen := make(map[string]bool)
	next := agg.CurrentVersionID
	for {
		if seen[next] {
			return nil, fmt.Errorf("%w: %s %s has a cycle at %s", storage.ErrInconsistentState, s.spec.Kind, key, next)
		}
		seen[next] = true

		v, err := s.loadVersion(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s: %v", storage.ErrInconsistentState, s.spec.Kind, key, err)
		}
		if v.AggregateID != key {
			return nil, fmt.Errorf("%w: version %s belongs to %s", storage.ErrInconsistentState, v.ID, v.AggregateID)
		}
		if len(chain) > 0 && v.VersionNumber != chain[len(chain)-1].VersionNumber-1 {
			return nil, fmt.Errorf("%w: %s %s skips from %d to %d", storage.ErrInconsistentState,
				s.spec.Kind, key, chain[len(chain)-1].VersionNumber, v.VersionNumber)
		}
		chain = append(chain, v)

		if v.PrevVersionID == nil {
			break
		}
		next = *v.PrevVersionID
	}

	if last := chain[len(chain)-1]; last.VersionNumber != 0 {
		return nil, fmt.Errorf("%w: %s %s ends at version %d", storage.ErrInconsistentState, s.spec.Kind, key, last.VersionNumber)
	}
	return chain, nil
}

// loadCurrent loads the version agg points at.
func (s *Store[F]) loadCurrent(ctx context.Context, agg *domain.Aggregate) (*domain.Version[F], error) {
	if agg.CurrentVersionID == "" {
		return nil, fmt.Errorf("%w: %s %s has no current version", storage.ErrInconsistentState, s.spec.Kind, agg.ID)
	}
	v, err := s.loadVersion(ctx, agg.CurrentVersionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s %s points at missing version %s",
			storage.ErrInconsistentState, s.spec.Kind, agg.ID, agg.CurrentVersionID)
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Store[F]) loadVersion(ctx context.Context, id string) (*domain.Version[F], error) {
	record, err := s.table.GetVersion(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get %s version %s: %w", s.spec.Kind, id, err)
	}
	v, err := decode[F](record)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s version %s: %v", storage.ErrInconsistentState, s.spec.Kind, id, err)
	}
	return v, nil
}

func encode[F any](v *domain.Version[F]) (*domain.VersionRecord, error) {
	fields, err := json.Marshal(v.Fields)
	if err != nil {
		return nil, err
	}
	return &domain.VersionRecord{
		ID:            v.ID,
		AggregateID:   v.AggregateID,
		TxID:          v.TxID,
		VersionNumber: v.VersionNumber,
		PrevVersionID: v.PrevVersionID,
		Fields:        fields,
	}, nil
}

func decode[F any](r *domain.VersionRecord) (*domain.Version[F], error) {
	v := &domain.Version[F]{
		ID:            r.ID,
		AggregateID:   r.AggregateID,
		TxID:          r.TxID,
		VersionNumber: r.VersionNumber,
		PrevVersionID: r.PrevVersionID,
	}
	if err := json.Unmarshal(r.Fields, &v.Fields); err != nil {
		return nil, err
	}
	return v, nil
}
