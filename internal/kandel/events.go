// Package kandel projects the Kandel stream into versioned strategy and offer-set
// aggregates.
package kandel

import (
	"mangrove-indexer/internal/domain"
	"mangrove-indexer/internal/stream"
)

// Event kinds of the Kandel stream.
const (
	KindNewKandel       = "NewKandel"
	KindNewAaveKandel   = "NewAaveKandel"
	KindSetParams       = "SetParams"
	KindCredit          = "Credit"
	KindDebit           = "Debit"
	KindPopulate        = "Populate"
	KindRetract         = "Retract"
	KindSetIndexMapping = "SetIndexMapping"
)

// Payload is the closed set of Kandel stream payloads.
type Payload interface {
	stream.Payload
	header() Header
}

// Header is carried by every Kandel payload. Address is the emitting contract:
// the seeder for creation events, the Kandel itself otherwise.
type Header struct {
	ChainID uint64       `json:"chainId"`
	Address string       `json:"address"`
	Tx      domain.TxRef `json:"tx"`
}

func (h Header) header() Header { return h }

// NewKandel announces a Kandel deployed by a seeder.
type NewKandel struct {
	Header
	Kandel   string `json:"kandel"`
	Owner    string `json:"owner"`
	Mangrove string `json:"mangrove"`
	Base     string `json:"base"`
	Quote    string `json:"quote"`
}

// NewAaveKandel announces a Kandel whose funds live in a reserve.
type NewAaveKandel struct {
	Header
	Kandel   string `json:"kandel"`
	Owner    string `json:"owner"`
	Mangrove string `json:"mangrove"`
	Base     string `json:"base"`
	Quote    string `json:"quote"`
	Reserve  string `json:"reserve"`
}

// SetParams updates strategy parameters. Absent fields are left unchanged.
type SetParams struct {
	Header
	Gasprice          *string `json:"gasprice,omitempty"`
	GasReq            *string `json:"gasReq,omitempty"`
	Ratio             *string `json:"ratio,omitempty"`
	Spread            *string `json:"spread,omitempty"`
	Length            *string `json:"length,omitempty"`
	CompoundRateBase  *string `json:"compoundRateBase,omitempty"`
	CompoundRateQuote *string `json:"compoundRateQuote,omitempty"`
	Admin             *string `json:"admin,omitempty"`
	Router            *string `json:"router,omitempty"`
}

// Credit is a deposit of Amount of Token into the strategy.
type Credit struct {
	Header
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// Debit is a withdrawal of Amount of Token from the strategy.
type Debit struct {
	Header
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

// OfferValues is one slot written by Populate.
type OfferValues struct {
	OfferType domain.OfferType `json:"offerType"`
	Index     int              `json:"index"`
	OfferID   uint64           `json:"offerId"`
	Gives     string           `json:"gives"`
	Wants     string           `json:"wants"`
}

// OfferRef addresses one slot.
type OfferRef struct {
	OfferType domain.OfferType `json:"offerType"`
	Index     int              `json:"index"`
}

// Populate publishes offers on the strategy's slots.
type Populate struct {
	Header
	Offers []OfferValues `json:"offers"`
}

// Retract takes offers off the book.
type Retract struct {
	Header
	Offers []OfferRef `json:"offers"`
}

// SetIndexMapping binds a slot to a Mangrove offer id.
type SetIndexMapping struct {
	Header
	OfferType domain.OfferType `json:"offerType"`
	Index     int              `json:"index"`
	OfferID   uint64           `json:"offerId"`
}

func (NewKandel) Kind() string       { return KindNewKandel }
func (NewAaveKandel) Kind() string   { return KindNewAaveKandel }
func (SetParams) Kind() string       { return KindSetParams }
func (Credit) Kind() string          { return KindCredit }
func (Debit) Kind() string           { return KindDebit }
func (Populate) Kind() string        { return KindPopulate }
func (Retract) Kind() string         { return KindRetract }
func (SetIndexMapping) Kind() string { return KindSetIndexMapping }

// Decode decodes one Kandel stream payload.
func Decode(data []byte) (Payload, error) {
	kind, err := stream.PeekKind(data)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindNewKandel:
		return stream.DecodeJSON[NewKandel](data)
	case KindNewAaveKandel:
		return stream.DecodeJSON[NewAaveKandel](data)
	case KindSetParams:
		return stream.DecodeJSON[SetParams](data)
	case KindCredit:
		return stream.DecodeJSON[Credit](data)
	case KindDebit:
		return stream.DecodeJSON[Debit](data)
	case KindPopulate:
		return stream.DecodeJSON[Populate](data)
	case KindRetract:
		return stream.DecodeJSON[Retract](data)
	case KindSetIndexMapping:
		return stream.DecodeJSON[SetIndexMapping](data)
	default:
		return nil, stream.UnknownKind(kind)
	}
}
