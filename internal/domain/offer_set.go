package domain

import (
	"maps"
	"strconv"
)

// OfferType distinguishes the two sides of a Kandel distribution.
type OfferType string

const (
	OfferTypeBids OfferType = "bids"
	OfferTypeAsks OfferType = "asks"
)

// IsValid checks if the offer type is a valid value.
func (t OfferType) IsValid() bool {
	return t == OfferTypeBids || t == OfferTypeAsks
}

// OfferSlot is one position of a strategy's price distribution.
type OfferSlot struct {
	OfferID uint64 `json:"offerId"`
	Gives   string `json:"gives"`
	Wants   string `json:"wants"`
	Live    bool   `json:"live"`
}

// OfferSetFields are the versioned fields of a strategy's offer set,
// keyed by SlotKey.
type OfferSetFields struct {
	Offers map[string]OfferSlot `json:"offers"`
}

// NewOfferSetFields returns an empty offer set.
func NewOfferSetFields() OfferSetFields {
	return OfferSetFields{Offers: map[string]OfferSlot{}}
}

// SlotKey returns the key of the slot at index on side t.
func SlotKey(t OfferType, index int) string {
	return string(t) + "/" + strconv.Itoa(index)
}

// clone copies the offer map so the previous version is never aliased.
func (f OfferSetFields) clone() OfferSetFields {
	next := OfferSetFields{Offers: make(map[string]OfferSlot, len(f.Offers))}
	maps.Copy(next.Offers, f.Offers)
	return next
}

// PopulatedOffer is one slot written by a populate.
type PopulatedOffer struct {
	Type    OfferType
	Index   int
	OfferID uint64 // zero keeps the mapped id
	Gives   string
	Wants   string
}

// PopulatePatch marks the given slots live with their new volumes.
type PopulatePatch struct {
	Offers []PopulatedOffer
}

// Apply implements Patch.
func (p PopulatePatch) Apply(prev OfferSetFields) OfferSetFields {
	next := prev.clone()
	for _, o := range p.Offers {
		key := SlotKey(o.Type, o.Index)
		slot := next.Offers[key]
		if o.OfferID != 0 {
			slot.OfferID = o.OfferID
		}
		slot.Gives = o.Gives
		slot.Wants = o.Wants
		slot.Live = true
		next.Offers[key] = slot
	}
	return next
}

// SlotRef addresses one slot.
type SlotRef struct {
	Type  OfferType
	Index int
}

// RetractPatch takes the given slots offline. Unknown slots are recorded as dead.
type RetractPatch struct {
	Offers []SlotRef
}

// Apply implements Patch.
func (p RetractPatch) Apply(prev OfferSetFields) OfferSetFields {
	next := prev.clone()
	for _, ref := range p.Offers {
		key := SlotKey(ref.Type, ref.Index)
		slot := next.Offers[key]
		slot.Live = false
		slot.Gives = "0"
		if slot.Wants == "" {
			slot.Wants = "0"
		}
		next.Offers[key] = slot
	}
	return next
}

// IndexMappingPatch binds a slot to a Mangrove offer id.
type IndexMappingPatch struct {
	Type    OfferType
	Index   int
	OfferID uint64
}

// Apply implements Patch.
func (p IndexMappingPatch) Apply(prev OfferSetFields) OfferSetFields {
	next := prev.clone()
	key := SlotKey(p.Type, p.Index)
	slot := next.Offers[key]
	slot.OfferID = p.OfferID
	if slot.Gives == "" {
		slot.Gives = "0"
	}
	if slot.Wants == "" {
		slot.Wants = "0"
	}
	next.Offers[key] = slot
	return next
}
