package domain

import "time"

// Transaction is one ledger entry per distinct on-chain transaction, scoped by chain.
// Created at most once, never mutated or deleted.
type Transaction struct {
	ID          string    // <chain>-<txHash>
	ChainID     uint64    // chain the transaction was observed on
	TxHash      string    // transaction hash
	Sender      string    // from address
	BlockNumber int64     // block containing the transaction
	BlockHash   string    // hash of that block
	Time        time.Time // event timestamp of the first observation
}

// TxRef is the transaction reference carried by stream payloads.
type TxRef struct {
	TxHash      string `json:"txHash"`
	Sender      string `json:"sender"`
	BlockNumber int64  `json:"blockNumber"`
	BlockHash   string `json:"blockHash"`
}
