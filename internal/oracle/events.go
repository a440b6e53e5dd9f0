// Package oracle projects the Mangrove oracle stream into versioned oracle aggregates.
package oracle

import (
	"mangrove-indexer/internal/domain"
	"mangrove-indexer/internal/stream"
)

// Event kinds of the oracle stream.
const (
	KindSetGasprice = "SetGasprice"
	KindSetDensity  = "SetDensity"
)

// Payload is the closed set of oracle stream payloads.
type Payload interface {
	stream.Payload
	oraclePayload()
}

// SetGasprice sets the gas price an oracle reports.
type SetGasprice struct {
	Address  string        `json:"address"`
	Tx       *domain.TxRef `json:"tx,omitempty"`
	GasPrice string        `json:"gasPrice"`
}

// SetDensity sets the density an oracle reports.
type SetDensity struct {
	Address string        `json:"address"`
	Tx      *domain.TxRef `json:"tx,omitempty"`
	Density string        `json:"density"`
}

func (SetGasprice) Kind() string { return KindSetGasprice }
func (SetDensity) Kind() string  { return KindSetDensity }

func (SetGasprice) oraclePayload() {}
func (SetDensity) oraclePayload()  {}

// Decode decodes one oracle stream payload.
func Decode(data []byte) (Payload, error) {
	kind, err := stream.PeekKind(data)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindSetGasprice:
		return stream.DecodeJSON[SetGasprice](data)
	case KindSetDensity:
		return stream.DecodeJSON[SetDensity](data)
	default:
		return nil, stream.UnknownKind(kind)
	}
}
