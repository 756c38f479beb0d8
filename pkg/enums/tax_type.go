package enums

// TaxType distinguishes a CGST+SGST split from IGST.
type TaxType string

const (
	TaxTypeIntraState TaxType = "intra_state"
	TaxTypeInterState TaxType = "inter_state"
)

// IsValid reports whether the value is a known TaxType.
func (t TaxType) IsValid() bool {
	return t == TaxTypeIntraState || t == TaxTypeInterState
}
