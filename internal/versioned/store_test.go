package versioned

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mangrove-indexer/internal/domain"
	"mangrove-indexer/internal/ids"
	"mangrove-indexer/internal/storage"
	"mangrove-indexer/internal/storage/memory"
)

var oracleSpec = Spec[domain.OracleFields]{
	Kind:    domain.KindOracle,
	Initial: domain.NewOracleFields,
}

func gasprice(v string) domain.OraclePatch {
	return domain.OraclePatch{Gasprice: &v}
}

// inTx runs fn against an oracle store inside one committed unit of work.
func inTx(t *testing.T, db storage.DB, fn func(ctx context.Context, s *Store[domain.OracleFields]) error) error {
	t.Helper()
	return db.WithinTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return fn(ctx, New(tx.Aggregates(domain.KindOracle), oracleSpec))
	})
}

func TestAppend_FirstAndSecondVersion(t *testing.T) {
	db := memory.NewDB()
	id := ids.MustAggregateID(123, "0xAB")

	var v0 *domain.Version[domain.OracleFields]
	err := inTx(t, db, func(ctx context.Context, s *Store[domain.OracleFields]) error {
		agg, v, err := s.Append(ctx, id, "tx1", gasprice("1"))
		require.NoError(t, err)
		assert.Equal(t, 0, v.VersionNumber)
		assert.Nil(t, v.PrevVersionID)
		assert.Equal(t, "1", v.Fields.Gasprice)
		assert.Equal(t, "0", v.Fields.Density, "unrelated fields keep their initial value")
		assert.Equal(t, "tx1", v.TxID)
		assert.Equal(t, v.ID, agg.CurrentVersionID)
		assert.Equal(t, "123-0xab-0", v.ID)
		v0 = v
		return nil
	})
	require.NoError(t, err)

	err = inTx(t, db, func(ctx context.Context, s *Store[domain.OracleFields]) error {
		agg, v, err := s.Append(ctx, id, "tx2", gasprice("2"))
		require.NoError(t, err)
		assert.Equal(t, 1, v.VersionNumber)
		require.NotNil(t, v.PrevVersionID)
		assert.Equal(t, v0.ID, *v.PrevVersionID)
		assert.Equal(t, "2", v.Fields.Gasprice)
		assert.Equal(t, v.ID, agg.CurrentVersionID)
		return nil
	})
	require.NoError(t, err)

	// Rolling back once restores version 0 and keeps the aggregate.
	err = inTx(t, db, func(ctx context.Context, s *Store[domain.OracleFields]) error {
		require.NoError(t, s.Rollback(ctx, id))

		agg, current, err := s.Current(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, v0.ID, agg.CurrentVersionID)
		assert.Equal(t, "1", current.Fields.Gasprice)
		return nil
	})
	require.NoError(t, err)

	snap := db.Snapshot(domain.KindOracle)
	require.Len(t, snap.Aggregates, 1)
	require.Len(t, snap.Versions, 1)
	assert.Equal(t, v0.ID, snap.Versions[0].ID)
}

func TestAppend_CaseInsensitiveAddress(t *testing.T) {
	db := memory.NewDB()

	err := inTx(t, db, func(ctx context.Context, s *Store[domain.OracleFields]) error {
		_, _, err := s.Append(ctx, ids.MustAggregateID(1, "0xabcdef"), "tx1", gasprice("1"))
		require.NoError(t, err)
		_, v, err := s.Append(ctx, ids.MustAggregateID(1, "0xABCDEF"), "tx2", gasprice("2"))
		require.NoError(t, err)
		assert.Equal(t, 1, v.VersionNumber)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, db.Snapshot(domain.KindOracle).Aggregates, 1)
}

func TestRollback_FreshAggregate(t *testing.T) {
	db := memory.NewDB()

	err := inTx(t, db, func(ctx context.Context, s *Store[domain.OracleFields]) error {
		return s.Rollback(ctx, ids.MustAggregateID(1, "0xff"))
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRollback_VersionZeroDeletesAggregate(t *testing.T) {
	db := memory.NewDB()
	id := ids.MustAggregateID(1, "0x01")

	err := inTx(t, db, func(ctx context.Context, s *Store[domain.OracleFields]) error {
		if _, _, err := s.Append(ctx, id, "tx1", gasprice("1")); err != nil {
			return err
		}
		return s.Rollback(ctx, id)
	})
	require.NoError(t, err)

	snap := db.Snapshot(domain.KindOracle)
	assert.Empty(t, snap.Aggregates)
	assert.Empty(t, snap.Versions)

	err = inTx(t, db, func(ctx context.Context, s *Store[domain.OracleFields]) error {
		return s.Rollback(ctx, id)
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRollback_DanglingPointer(t *testing.T) {
	db := memory.NewDB()

	err := db.WithinTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.Aggregates(domain.KindOracle).UpsertAggregate(ctx, &domain.Aggregate{
			ID: "1-0x01", ChainID: 1, Address: "0x01", CurrentVersionID: "1-0x01-3",
		})
	})
	require.NoError(t, err)

	err = inTx(t, db, func(ctx context.Context, s *Store[domain.OracleFields]) error {
		return s.Rollback(ctx, ids.MustAggregateID(1, "0x01"))
	})
	assert.ErrorIs(t, err, storage.ErrInconsistentState)

	err = inTx(t, db, func(ctx context.Context, s *Store[domain.OracleFields]) error {
		_, _, err := s.Append(ctx, ids.MustAggregateID(1, "0x01"), "tx", gasprice("1"))
		return err
	})
	assert.ErrorIs(t, err, storage.ErrInconsistentState)
}

func TestAppend_ErrorDiscardsBatch(t *testing.T) {
	db := memory.NewDB()
	id := ids.MustAggregateID(1, "0x01")

	err := inTx(t, db, func(ctx context.Context, s *Store[domain.OracleFields]) error {
		if _, _, err := s.Append(ctx, id, "tx1", gasprice("1")); err != nil {
			return err
		}
		// Second event of the batch fails.
		return s.Rollback(ctx, ids.MustAggregateID(1, "0x02"))
	})
	require.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, db.Snapshot(domain.KindOracle).Aggregates, "no partial batch is visible")
}

func TestAppend_RollbackThenAppendInOneBatch(t *testing.T) {
	db := memory.NewDB()
	id := ids.MustAggregateID(1, "0x01")

	require.NoError(t, inTx(t, db, func(ctx context.Context, s *Store[domain.OracleFields]) error {
		_, _, err := s.Append(ctx, id, "tx1", gasprice("1"))
		if err != nil {
			return err
		}
		_, _, err = s.Append(ctx, id, "tx2", gasprice("2"))
		return err
	}))

	// A reorg replaces the tip: undo then apply the new event.
	require.NoError(t, inTx(t, db, func(ctx context.Context, s *Store[domain.OracleFields]) error {
		if err := s.Rollback(ctx, id); err != nil {
			return err
		}
		_, v, err := s.Append(ctx, id, "tx3", gasprice("3"))
		if err != nil {
			return err
		}
		assert.Equal(t, 1, v.VersionNumber)
		return nil
	}))

	require.NoError(t, inTx(t, db, func(ctx context.Context, s *Store[domain.OracleFields]) error {
		history, err := s.History(ctx, id)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "3", history[0].Fields.Gasprice)
		assert.Equal(t, "tx3", history[0].TxID)
		assert.Equal(t, "1", history[1].Fields.Gasprice)
		return nil
	}))
}

func TestHistory_DetectsGap(t *testing.T) {
	db := memory.NewDB()
	prev := "1-0x01-0"

	err := db.WithinTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		table := tx.Aggregates(domain.KindOracle)
		_ = table.InsertVersion(ctx, &domain.VersionRecord{ID: "1-0x01-0", AggregateID: "1-0x01", VersionNumber: 0, Fields: []byte(`{}`)})
		_ = table.InsertVersion(ctx, &domain.VersionRecord{ID: "1-0x01-2", AggregateID: "1-0x01", VersionNumber: 2, PrevVersionID: &prev, Fields: []byte(`{}`)})
		return table.UpsertAggregate(ctx, &domain.Aggregate{ID: "1-0x01", CurrentVersionID: "1-0x01-2"})
	})
	require.NoError(t, err)

	err = inTx(t, db, func(ctx context.Context, s *Store[domain.OracleFields]) error {
		_, err := s.History(ctx, ids.MustAggregateID(1, "0x01"))
		return err
	})
	assert.ErrorIs(t, err, storage.ErrInconsistentState)
}

func TestAppend_PatchFunc(t *testing.T) {
	db := memory.NewDB()

	err := inTx(t, db, func(ctx context.Context, s *Store[domain.OracleFields]) error {
		_, v, err := s.Append(ctx, ids.MustAggregateID(1, "0x01"), "tx", domain.PatchFunc[domain.OracleFields](
			func(prev domain.OracleFields) domain.OracleFields {
				prev.Density = "9"
				return prev
			}))
		require.NoError(t, err)
		assert.Equal(t, "9", v.Fields.Density)
		assert.Equal(t, "0", v.Fields.Gasprice)
		return nil
	})
	require.NoError(t, err)
}
