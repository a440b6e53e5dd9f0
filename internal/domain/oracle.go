package domain

// OracleFields are the versioned fields of a Mangrove oracle.
type OracleFields struct {
	Gasprice string `json:"gasprice"`
	Density  string `json:"density"`
}

// NewOracleFields returns the fields of a freshly created oracle.
func NewOracleFields() OracleFields {
	return OracleFields{Gasprice: "0", Density: "0"}
}

// OraclePatch overrides the oracle fields that are set.
type OraclePatch struct {
	Gasprice *string
	Density  *string
}

// Apply implements Patch.
func (p OraclePatch) Apply(prev OracleFields) OracleFields {
	next := prev
	if p.Gasprice != nil {
		next.Gasprice = *p.Gasprice
	}
	if p.Density != nil {
		next.Density = *p.Density
	}
	return next
}
