package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"mangrove-indexer/internal/domain"
	"mangrove-indexer/internal/storage"
)

var errAbort = errors.New("abort")

func strPtr(s string) *string { return &s }

func TestDB_CommitPublishesWrites(t *testing.T) {
	db := NewDB()
	ctx := context.Background()

	err := db.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		table := tx.Aggregates(domain.KindOracle)
		if err := table.InsertVersion(ctx, &domain.VersionRecord{
			ID: "1-0xaa-0", AggregateID: "1-0xaa", TxID: "1-0x01", Fields: []byte(`{}`),
		}); err != nil {
			return err
		}
		return table.UpsertAggregate(ctx, &domain.Aggregate{
			ID: "1-0xaa", ChainID: 1, Address: "0xaa", CurrentVersionID: "1-0xaa-0",
		})
	})
	if err != nil {
		t.Fatalf("WithinTx failed: %v", err)
	}

	snap := db.Snapshot(domain.KindOracle)
	if len(snap.Aggregates) != 1 || len(snap.Versions) != 1 {
		t.Fatalf("expected 1 aggregate and 1 version, got %d and %d", len(snap.Aggregates), len(snap.Versions))
	}
	if snap.Aggregates[0].CurrentVersionID != "1-0xaa-0" {
		t.Errorf("CurrentVersionID mismatch: got %s", snap.Aggregates[0].CurrentVersionID)
	}
	if len(db.Snapshot(domain.KindKandel).Aggregates) != 0 {
		t.Error("kinds must not share tables")
	}
}

func TestDB_ErrorDiscardsWrites(t *testing.T) {
	db := NewDB()
	ctx := context.Background()

	err := db.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.Transactions().InsertIfAbsent(ctx, &domain.Transaction{ID: "1-0x01", ChainID: 1}); err != nil {
			return err
		}
		if err := tx.Offsets().Set(ctx, "s", 10); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("expected errAbort, got %v", err)
	}
	if db.TransactionCount() != 0 {
		t.Error("transaction must not be committed")
	}

	_ = db.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.Offsets().Get(ctx, "s"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound for offset, got %v", err)
		}
		return nil
	})
}

func TestDB_ReadYourWrites(t *testing.T) {
	db := NewDB()
	ctx := context.Background()

	_ = db.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		table := tx.Aggregates(domain.KindOrder)
		_ = table.InsertVersion(ctx, &domain.VersionRecord{ID: "v0", AggregateID: "a"})
		_ = table.InsertVersion(ctx, &domain.VersionRecord{ID: "v1", AggregateID: "a", PrevVersionID: strPtr("v0")})

		n, err := table.CountVersions(ctx, "a")
		if err != nil || n != 2 {
			t.Errorf("expected 2 versions, got %d (%v)", n, err)
		}
		if err := table.DeleteVersion(ctx, "v1"); err != nil {
			t.Errorf("DeleteVersion failed: %v", err)
		}
		if _, err := table.GetVersion(ctx, "v1"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
		n, _ = table.CountVersions(ctx, "a")
		if n != 1 {
			t.Errorf("expected 1 version, got %d", n)
		}
		return nil
	})
}

func TestDB_ReadCommittedAcrossUnits(t *testing.T) {
	db := NewDB()
	ctx := context.Background()
	ts := time.Unix(100, 0)

	err := db.WithinTx(ctx, func(ctx context.Context, outer storage.Tx) error {
		found, _ := outer.Transactions().ExistsAtOrAfter(ctx, 7, ts)
		if found {
			t.Error("nothing committed yet")
		}

		// Another unit of work commits while this one is open.
		if err := db.WithinTx(ctx, func(ctx context.Context, inner storage.Tx) error {
			_, err := inner.Transactions().InsertIfAbsent(ctx, &domain.Transaction{ID: "7-0x01", ChainID: 7, Time: ts})
			return err
		}); err != nil {
			return err
		}

		found, _ = outer.Transactions().ExistsAtOrAfter(ctx, 7, ts)
		if !found {
			t.Error("committed row must be visible")
		}
		found, _ = outer.Transactions().ExistsAtOrAfter(ctx, 8, ts)
		if found {
			t.Error("other chains must not match")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithinTx failed: %v", err)
	}
}

func TestDB_InsertIfAbsentKeepsFirst(t *testing.T) {
	db := NewDB()
	ctx := context.Background()

	for _, sender := range []string{"0xfirst", "0xsecond"} {
		err := db.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			_, err := tx.Transactions().InsertIfAbsent(ctx, &domain.Transaction{ID: "1-0x01", ChainID: 1, Sender: sender})
			return err
		})
		if err != nil {
			t.Fatalf("WithinTx failed: %v", err)
		}
	}

	_ = db.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		got, err := tx.Transactions().Get(ctx, "1-0x01")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Sender != "0xfirst" {
			t.Errorf("Sender mismatch: got %s, want 0xfirst", got.Sender)
		}
		return nil
	})
	if db.TransactionCount() != 1 {
		t.Errorf("expected 1 transaction, got %d", db.TransactionCount())
	}
}

func TestDB_DuplicateVersion(t *testing.T) {
	db := NewDB()
	ctx := context.Background()
	insert := func(ctx context.Context, tx storage.Tx) error {
		return tx.Aggregates(domain.KindOracle).InsertVersion(ctx, &domain.VersionRecord{ID: "v0", AggregateID: "a"})
	}

	if err := db.WithinTx(ctx, insert); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := db.WithinTx(ctx, insert); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestDB_DeleteThenReinsertVersion(t *testing.T) {
	db := NewDB()
	ctx := context.Background()

	_ = db.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Aggregates(domain.KindOracle).InsertVersion(ctx, &domain.VersionRecord{ID: "v0", AggregateID: "a", Fields: []byte(`{"n":1}`)})
	})

	err := db.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		table := tx.Aggregates(domain.KindOracle)
		if err := table.DeleteVersion(ctx, "v0"); err != nil {
			return err
		}
		return table.InsertVersion(ctx, &domain.VersionRecord{ID: "v0", AggregateID: "a", Fields: []byte(`{"n":2}`)})
	})
	if err != nil {
		t.Fatalf("WithinTx failed: %v", err)
	}

	snap := db.Snapshot(domain.KindOracle)
	if len(snap.Versions) != 1 || string(snap.Versions[0].Fields) != `{"n":2}` {
		t.Errorf("expected replaced version, got %+v", snap.Versions)
	}
}

func TestDB_ListAggregateIDs(t *testing.T) {
	db := NewDB()
	ctx := context.Background()

	_ = db.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		table := tx.Aggregates(domain.KindKandel)
		for _, id := range []string{"c", "a", "b"} {
			_ = table.UpsertAggregate(ctx, &domain.Aggregate{ID: id})
		}
		return nil
	})

	_ = db.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		table := tx.Aggregates(domain.KindKandel)
		_ = table.DeleteAggregate(ctx, "b")
		got, err := table.ListAggregateIDs(ctx)
		if err != nil {
			t.Fatalf("ListAggregateIDs failed: %v", err)
		}
		if len(got) != 2 || got[0] != "a" || got[1] != "c" {
			t.Errorf("unexpected ids: %v", got)
		}
		return nil
	})
}

func TestDB_ReturnsCopies(t *testing.T) {
	db := NewDB()
	ctx := context.Background()

	_ = db.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Aggregates(domain.KindOracle).InsertVersion(ctx, &domain.VersionRecord{ID: "v1", AggregateID: "a", PrevVersionID: strPtr("v0"), Fields: []byte(`{}`)})
	})

	_ = db.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		v, _ := tx.Aggregates(domain.KindOracle).GetVersion(ctx, "v1")
		*v.PrevVersionID = "mutated"
		v.Fields[0] = 'x'
		return nil
	})

	snap := db.Snapshot(domain.KindOracle)
	if *snap.Versions[0].PrevVersionID != "v0" || string(snap.Versions[0].Fields) != `{}` {
		t.Error("stored version was mutated through a returned copy")
	}
}

func TestDB_CanceledContext(t *testing.T) {
	db := NewDB()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := db.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("fn must not run on a canceled context")
	}
}

func TestJournal_Append(t *testing.T) {
	j := NewJournal()
	ctx := context.Background()

	_ = j.Append(ctx, []storage.JournalEntry{{Stream: "s", Offset: 1}, {Stream: "s", Offset: 2}})
	_ = j.Append(ctx, []storage.JournalEntry{{Stream: "s", Offset: 3}})

	got := j.Entries()
	if len(got) != 3 || got[2].Offset != 3 {
		t.Errorf("unexpected entries: %+v", got)
	}
}
