package domain

import "strings"

// OrderFields are the fields of an order placed through a Mangrove order contract.
type OrderFields struct {
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
	Price          string `json:"price"` // takerGave / takerGot
}

// NewOrderFields returns the fields of an order before its summary is applied.
func NewOrderFields() OrderFields {
	return OrderFields{TakerGot: "0", TakerGave: "0", Penalty: "0", Price: "0"}
}

// OrderSummaryPatch records the outcome of an order.
type OrderSummaryPatch struct {
	Mangrove       string
	Taker          string
	OutboundToken  string
	InboundToken   string
	FillOrKill     bool
	FillWants      bool
	TakerGot       string
	TakerGave      string
	Penalty        string
	RestingOrderID uint64
}

// Apply implements Patch.
func (p OrderSummaryPatch) Apply(prev OrderFields) OrderFields {
	next := prev
	next.Mangrove = strings.ToLower(p.Mangrove)
	next.Taker = strings.ToLower(p.Taker)
	next.OutboundToken = strings.ToLower(p.OutboundToken)
	next.InboundToken = strings.ToLower(p.InboundToken)
	next.FillOrKill = p.FillOrKill
	next.FillWants = p.FillWants
	next.TakerGot = orZero(p.TakerGot)
	next.TakerGave = orZero(p.TakerGave)
	next.Penalty = orZero(p.Penalty)
	next.RestingOrderID = p.RestingOrderID
	next.Price = orderPrice(next.TakerGave, next.TakerGot)
	return next
}

// orderPrice returns gave/got, or zero when nothing was received.
func orderPrice(gave, got string) string {
	g := parseDecimal(got)
	if g.IsZero() {
		return "0"
	}
	return parseDecimal(gave).DivRound(g, 18).String()
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
