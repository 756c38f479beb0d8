package types

// TaxBreakdown is the GST split, in paise.
type TaxBreakdown struct {
	TaxType          string `json:"tax_type"`
	CGST             int64  `json:"cgst"`
	SGST             int64  `json:"sgst"`
	IGST             int64  `json:"igst"`
	TotalTax         int64  `json:"total_tax"`
	GSTRate          string `json:"gst_rate"`
	PriceIncludesTax bool   `json:"price_includes_tax"`
}

// ShippingQuote is a single shipping option, in paise.
type ShippingQuote struct {
	OptionName        string `json:"option_name"`
	Amount            int64  `json:"amount"`
	EstimatedDelivery string `json:"estimated_delivery,omitempty"`
}
