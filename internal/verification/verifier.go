// Package verification checks the structural invariants of the stored version chains.
package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mangrove-indexer/internal/domain"
	"mangrove-indexer/internal/storage"
	"mangrove-indexer/internal/versioned"
)

// Issue kinds.
const (
	IssueBrokenChain        = "broken_chain"        // chain has a gap, cycle or dangling pointer
	IssueOrphanVersions     = "orphan_versions"     // versions not reachable from the current pointer
	IssueMissingTransaction = "missing_transaction" // version references an unknown ledger row
)

// Issue is one violated invariant.
type Issue struct {
	Kind        domain.Kind // aggregate kind
	AggregateID string      // aggregate key
	Type        string      // one of the Issue* constants
	Detail      string      // human-readable description
}

// AggregateResult is the outcome of verifying one aggregate.
type AggregateResult struct {
	Kind        domain.Kind
	AggregateID string
	Versions    int  // length of the reachable chain
	Valid       bool // true if no issue was found
	Issues      []Issue
}

// Report summarizes a verification run.
type Report struct {
	TotalAggregates   int
	TotalVersions     int
	InvalidAggregates int
	Results           []AggregateResult
}

// Issues returns every issue of r, in result order.
func (r *Report) Issues() []Issue {
	var issues []Issue
	for _, res := range r.Results {
		issues = append(issues, res.Issues...)
	}
	return issues
}

// OK reports whether no issue was found.
func (r *Report) OK() bool {
	return r.InvalidAggregates == 0
}

// Verifier walks the version chains of a projection.
type Verifier struct {
	db storage.DB
}

// NewVerifier creates a verifier reading through db.
func NewVerifier(db storage.DB) *Verifier {
	return &Verifier{db: db}
}

// rawSpec loads versions of any kind without decoding their fields.
func rawSpec(kind domain.Kind) versioned.Spec[json.RawMessage] {
	return versioned.Spec[json.RawMessage]{
		Kind:    kind,
		Initial: func() json.RawMessage { return json.RawMessage("{}") },
	}
}

// VerifyAll verifies every aggregate of kinds, or of every kind when none are given.
// Each kind is read in its own unit of work.
func (v *Verifier) VerifyAll(ctx context.Context, kinds ...domain.Kind) (*Report, error) {
	if len(kinds) == 0 {
		kinds = domain.Kinds
	}

	report := &Report{}
	for _, kind := range kinds {
		err := v.db.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			keys, err := tx.Aggregates(kind).ListAggregateIDs(ctx)
			if err != nil {
				return fmt.Errorf("list %s aggregates: %w", kind, err)
			}
			for _, key := range keys {
				res, err := verifyAggregate(ctx, tx, kind, key)
				if err != nil {
					return err
				}
				report.add(res)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return report, nil
}

// VerifyAggregate verifies the aggregate key of kind.
func (v *Verifier) VerifyAggregate(ctx context.Context, kind domain.Kind, key string) (*AggregateResult, error) {
	var res AggregateResult
	err := v.db.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		res, err = verifyAggregate(ctx, tx, kind, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *Report) add(res AggregateResult) {
	r.TotalAggregates++
	r.TotalVersions += res.Versions
	if !res.Valid {
		r.InvalidAggregates++
	}
	r.Results = append(r.Results, res)
}

// verifyAggregate returns an error only when the store itself fails.
func verifyAggregate(ctx context.Context, tx storage.Tx, kind domain.Kind, key string) (AggregateResult, error) {
	res := AggregateResult{Kind: kind, AggregateID: key}
	issue := func(typ, format string, args ...any) {
		res.Issues = append(res.Issues, Issue{Kind: kind, AggregateID: key, Type: typ, Detail: fmt.Sprintf(format, args...)})
	}

	table := tx.Aggregates(kind)
	chain, err := versioned.New(table, rawSpec(kind)).HistoryByKey(ctx, key)
	switch {
	case errors.Is(err, storage.ErrInconsistentState):
		issue(IssueBrokenChain, "%v", err)
	case err != nil:
		return res, err
	}
	res.Versions = len(chain)

	if err == nil {
		stored, err := table.CountVersions(ctx, key)
		if err != nil {
			return res, fmt.Errorf("count versions of %s: %w", key, err)
		}
		if stored != len(chain) {
			issue(IssueOrphanVersions, "%d versions stored, %d reachable", stored, len(chain))
		}
	}

	for _, version := range chain {
		_, err := tx.Transactions().Get(ctx, version.TxID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			issue(IssueMissingTransaction, "version %s references transaction %s", version.ID, version.TxID)
		case err != nil:
			return res, fmt.Errorf("get transaction %s: %w", version.TxID, err)
		}
	}

	res.Valid = len(res.Issues) == 0
	return res, nil
}
