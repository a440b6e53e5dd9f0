package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Kandel strategy types.
const (
	KandelTypeKandel     = "NewKandel"
	KandelTypeAaveKandel = "NewAaveKandel"
)

// KandelFields are the versioned fields of a Kandel market-making strategy.
// Numeric parameters are kept as the decimal strings emitted on-chain.
type KandelFields struct {
	Type              string `json:"type"`
	Mangrove          string `json:"mangrove"`
	Base              string `json:"base"`
	Quote             string `json:"quote"`
	Owner             string `json:"owner"`
	Reserve           string `json:"reserve"`
	Admin             string `json:"admin"`
	Router            string `json:"router"`
	GasReq            string `json:"gasReq"`
	Gasprice          string `json:"gasprice"`
	Ratio             string `json:"ratio"`
	Spread            string `json:"spread"`
	Length            string `json:"length"`
	CompoundRateBase  string `json:"compoundRateBase"`
	CompoundRateQuote string `json:"compoundRateQuote"`
	BaseBalance       string `json:"baseBalance"`
	QuoteBalance      string `json:"quoteBalance"`
}

// NewKandelFields returns the fields of a freshly created strategy.
func NewKandelFields() KandelFields {
	return KandelFields{
		GasReq:            "0",
		Gasprice:          "0",
		Ratio:             "0",
		Spread:            "0",
		Length:            "0",
		CompoundRateBase:  "0",
		CompoundRateQuote: "0",
		BaseBalance:       "0",
		QuoteBalance:      "0",
	}
}

// KandelCreatedPatch records the deployment of a strategy.
type KandelCreatedPatch struct {
	Type     string
	Mangrove string
	Base     string
	Quote    string
	Owner    string
	Reserve  string // defaults to the strategy itself for plain Kandels
}

// Apply implements Patch.
func (p KandelCreatedPatch) Apply(prev KandelFields) KandelFields {
	next := prev
	next.Type = p.Type
	next.Mangrove = strings.ToLower(p.Mangrove)
	next.Base = strings.ToLower(p.Base)
	next.Quote = strings.ToLower(p.Quote)
	next.Owner = strings.ToLower(p.Owner)
	next.Admin = next.Owner
	next.Reserve = strings.ToLower(p.Reserve)
	return next
}

// KandelParamsPatch overrides the strategy parameters that are set.
type KandelParamsPatch struct {
	Admin             *string
	Router            *string
	GasReq            *string
	Gasprice          *string
	Ratio             *string
	Spread            *string
	Length            *string
	CompoundRateBase  *string
	CompoundRateQuote *string
}

// Apply implements Patch.
func (p KandelParamsPatch) Apply(prev KandelFields) KandelFields {
	next := prev
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	if p.Admin != nil {
		next.Admin = strings.ToLower(*p.Admin)
	}
	if p.Router != nil {
		next.Router = strings.ToLower(*p.Router)
	}
	set(&next.GasReq, p.GasReq)
	set(&next.Gasprice, p.Gasprice)
	set(&next.Ratio, p.Ratio)
	set(&next.Spread, p.Spread)
	set(&next.Length, p.Length)
	set(&next.CompoundRateBase, p.CompoundRateBase)
	set(&next.CompoundRateQuote, p.CompoundRateQuote)
	return next
}

// KandelBalancePatch moves the strategy balance of one of its tokens.
// Credits carry a positive delta, debits a negative one. Tokens that are neither
// base nor quote leave the balances untouched.
type KandelBalancePatch struct {
	Token string
	Delta decimal.Decimal
}

// Apply implements Patch.
func (p KandelBalancePatch) Apply(prev KandelFields) KandelFields {
	next := prev
	token := strings.ToLower(p.Token)
	switch token {
	case prev.Base:
		next.BaseBalance = parseDecimal(prev.BaseBalance).Add(p.Delta).String()
	case prev.Quote:
		next.QuoteBalance = parseDecimal(prev.QuoteBalance).Add(p.Delta).String()
	}
	return next
}

// parseDecimal reads a stored decimal string; unreadable values count as zero.
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
