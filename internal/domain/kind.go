package domain

// Kind identifies a versioned aggregate kind. Each kind owns its own aggregate and
// version tables.
type Kind string

const (
	KindOracle   Kind = "oracle"
	KindKandel   Kind = "kandel"
	KindOfferSet Kind = "offer_set"
	KindOrder    Kind = "order"
)

// Kinds lists every aggregate kind in a fixed order.
var Kinds = []Kind{KindOracle, KindKandel, KindOfferSet, KindOrder}

// String returns the string representation of Kind.
func (k Kind) String() string {
	return string(k)
}

// IsValid checks if the kind is a known value.
func (k Kind) IsValid() bool {
	switch k {
	case KindOracle, KindKandel, KindOfferSet, KindOrder:
		return true
	}
	return false
}
