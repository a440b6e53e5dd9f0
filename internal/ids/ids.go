// Package ids encodes chains, transactions and versioned aggregates into canonical
// string keys. All functions are pure; keys are stable across restarts and replays.
package ids

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrMalformedAddress is returned for addresses that are not hex strings.
	ErrMalformedAddress = errors.New("malformed address")

	// ErrMalformedTxHash is returned for transaction hashes that are not hex strings.
	ErrMalformedTxHash = errors.New("malformed transaction hash")
)

// hexPattern accepts hex strings with an optional 0x prefix. Keys use '-' as separator,
// which can never appear in a matching string.
var hexPattern = regexp.MustCompile(`^(0[xX])?[0-9a-fA-F]+$`)

// normalizeHex returns s in canonical form: lower-case with a 0x prefix.
// "AB", "0xab" and "0XAB" all map to "0xab".
func normalizeHex(s string) (string, bool) {
	if !hexPattern.MatchString(s) {
		return "", false
	}
	s = strings.ToLower(s)
	return "0x" + strings.TrimPrefix(s, "0x"), true
}

// ChainID identifies a blockchain network.
type ChainID uint64

// Key returns the opaque chain key.
func (c ChainID) Key() string {
	return strconv.FormatUint(uint64(c), 10)
}

// AggregateID identifies one logical on-chain object on one chain.
type AggregateID struct {
	Chain     ChainID
	Address   string // canonical hex
	Qualifier string // optional canonical hex; set for objects that are not one-per-address
}

// NewAggregateID builds the id of the aggregate living at address on chain.
// Addresses are case-insensitive and the 0x prefix is optional.
func NewAggregateID(chain ChainID, address string) (AggregateID, error) {
	norm, ok := normalizeHex(address)
	if !ok {
		return AggregateID{}, fmt.Errorf("%w: %q", ErrMalformedAddress, address)
	}
	return AggregateID{Chain: chain, Address: norm}, nil
}

// MustAggregateID is NewAggregateID for literals known to be valid.
func MustAggregateID(chain ChainID, address string) AggregateID {
	id, err := NewAggregateID(chain, address)
	if err != nil {
		panic(err)
	}
	return id
}

// WithQualifier returns a copy of id scoped by qualifier (e.g. a transaction hash).
func (id AggregateID) WithQualifier(qualifier string) (AggregateID, error) {
	norm, ok := normalizeHex(qualifier)
	if !ok {
		return AggregateID{}, fmt.Errorf("%w: qualifier %q", ErrMalformedAddress, qualifier)
	}
	id.Qualifier = norm
	return id, nil
}

// Key returns the canonical aggregate key: <chain>-<address>[-<qualifier>].
func (id AggregateID) Key() string {
	if id.Qualifier == "" {
		return id.Chain.Key() + "-" + id.Address
	}
	return id.Chain.Key() + "-" + id.Address + "-" + id.Qualifier
}

// String implements fmt.Stringer.
func (id AggregateID) String() string {
	return id.Key()
}

// VersionID returns the key of version n of the aggregate with the given key.
func VersionID(aggregateKey string, n int) string {
	return aggregateKey + "-" + strconv.Itoa(n)
}

// TransactionID identifies one transaction on one chain.
type TransactionID struct {
	Chain  ChainID
	TxHash string // canonical hex
}

// NewTransactionID builds the ledger id of txHash on chain.
func NewTransactionID(chain ChainID, txHash string) (TransactionID, error) {
	norm, ok := normalizeHex(txHash)
	if !ok {
		return TransactionID{}, fmt.Errorf("%w: %q", ErrMalformedTxHash, txHash)
	}
	return TransactionID{Chain: chain, TxHash: norm}, nil
}

// Key returns the canonical transaction key: <chain>-<txHash>.
func (id TransactionID) Key() string {
	return id.Chain.Key() + "-" + id.TxHash
}

// String implements fmt.Stringer.
func (id TransactionID) String() string {
	return id.Key()
}
