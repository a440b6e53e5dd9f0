// Package order projects the strategies stream into order aggregates, one per
// order-contract transaction.
package order

import (
	"mangrove-indexer/internal/domain"
	"mangrove-indexer/internal/stream"
)

// Event kinds of the strategies stream.
const (
	KindOrderSummary  = "OrderSummary"
	KindLogIncident   = "LogIncident"
	KindNewOwnedOffer = "NewOwnedOffer"
)

// Payload is the closed set of strategies stream payloads.
type Payload interface {
	stream.Payload
	header() Header
}

// Header is carried by every strategies payload. Address is the order contract.
type Header struct {
	ChainID uint64       `json:"chainId"`
	Address string       `json:"address"`
	Tx      domain.TxRef `json:"tx"`
}

func (h Header) header() Header { return h }

// OrderSummary reports the outcome of a market or resting order.
type OrderSummary struct {
	Header
	Mangrove       string `json:"mangrove"`
	Taker          string `json:"taker"`
	OutboundToken  string `json:"outboundToken"`
	InboundToken   string `json:"inboundToken"`
	FillOrKill     bool   `json:"fillOrKill"`
	FillWants      bool   `json:"fillWants"`
	TakerGot       string `json:"takerGot"`
	TakerGave      string `json:"takerGave"`
	Penalty        string `json:"penalty"`
	RestingOrderID uint64 `json:"restingOrderId"`
}

// LogIncident reports a failed offer execution.
type LogIncident struct {
	Header
	OfferID uint64 `json:"offerId"`
	Reason  string `json:"reason"`
}

// NewOwnedOffer reports an offer posted on behalf of an owner.
type NewOwnedOffer struct {
	Header
	OfferID uint64 `json:"offerId"`
	Owner   string `json:"owner"`
}

func (OrderSummary) Kind() string  { return KindOrderSummary }
func (LogIncident) Kind() string   { return KindLogIncident }
func (NewOwnedOffer) Kind() string { return KindNewOwnedOffer }

// Decode decodes one strategies stream payload.
func Decode(data []byte) (Payload, error) {
	kind, err := stream.PeekKind(data)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindOrderSummary:
		return stream.DecodeJSON[OrderSummary](data)
	case KindLogIncident:
		return stream.DecodeJSON[LogIncident](data)
	case KindNewOwnedOffer:
		return stream.DecodeJSON[NewOwnedOffer](data)
	default:
		return nil, stream.UnknownKind(kind)
	}
}
