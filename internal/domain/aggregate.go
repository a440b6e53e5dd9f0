package domain

// Aggregate is the current-state record of one logical on-chain object.
// It exists iff it has at least one version; CurrentVersionID always references one.
type Aggregate struct {
	ID               string // aggregate key
	ChainID          uint64
	Address          string
	CurrentVersionID string
}

// VersionRecord is the storage form of one immutable version. Fields holds the
// kind-specific field set as a JSON document.
type VersionRecord struct {
	ID            string
	AggregateID   string
	TxID          string
	VersionNumber int
	PrevVersionID *string // nil for version 0
	Fields        []byte
}

// Version is the typed view of a VersionRecord.
type Version[F any] struct {
	ID            string
	AggregateID   string
	TxID          string
	VersionNumber int
	PrevVersionID *string
	Fields        F
}

// Patch derives the fields of a new version from the previous version's fields.
// Implementations copy every field forward and override only the ones they carry;
// prev must not be mutated.
type Patch[F any] interface {
	Apply(prev F) F
}

// PatchFunc adapts a plain function to Patch.
type PatchFunc[F any] func(prev F) F

// Apply implements Patch.
func (f PatchFunc[F]) Apply(prev F) F {
	return f(prev)
}
