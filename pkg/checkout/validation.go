package checkout

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

var (
	postalCodePattern = regexp.MustCompile(`^[1-9][0-9]{5}$`)
	mobilePattern     = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	phoneNoise        = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

// ShippingInfo is the destination form submitted at checkout.
type ShippingInfo struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
}

// NormalizePhone strips formatting and a +91/91/0 prefix and reports whether
// the rest is a 10-digit Indian mobile number.
func NormalizePhone(raw string) (string, bool) {
	digits := phoneNoise.Replace(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(digits, "+91"):
		digits = digits[3:]
	case len(digits) == 12 && strings.HasPrefix(digits, "91"):
		digits = digits[2:]
	case len(digits) == 11 && strings.HasPrefix(digits, "0"):
		digits = digits[1:]
	}
	return digits, mobilePattern.MatchString(digits)
}

// ValidateShippingInfo checks the required destination fields and the payment
// method. The returned error carries missing_fields and invalid_fields.
func ValidateShippingInfo(info ShippingInfo, method string) error {
	var missing, invalid []string

	required := []struct {
		field string
		value string
	}{
		{"name", info.Name},
		{"phone", info.Phone},
		{"line1", info.Line1},
		{"city", info.City},
		{"state", info.State},
		{"postal_code", info.PostalCode},
		{"payment_method", method},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.field)
		}
	}

	if strings.TrimSpace(info.Phone) != "" {
		if _, ok := NormalizePhone(info.Phone); !ok {
			invalid = append(invalid, "phone")
		}
	}
	if code := strings.TrimSpace(info.PostalCode); code != "" && !postalCodePattern.MatchString(code) {
		invalid = append(invalid, "postal_code")
	}
	if email := strings.TrimSpace(info.Email); email != "" {
		if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
			invalid = append(invalid, "email")
		}
	}
	if strings.TrimSpace(method) != "" {
		if _, err := enums.ParsePaymentMethod(method); err != nil {
			invalid = append(invalid, "payment_method")
		}
	}

	if len(missing) == 0 && len(invalid) == 0 {
		return nil
	}
	details := map[string]any{}
	if len(missing) > 0 {
		details["missing_fields"] = missing
	}
	if len(invalid) > 0 {
		details["invalid_fields"] = invalid
	}
	return pkgerrors.New(pkgerrors.CodeValidation, validationMessage(missing, invalid)).WithDetails(details)
}

func validationMessage(missing, invalid []string) string {
	if len(missing) > 0 {
		return "please fill in: " + strings.Join(missing, ", ")
	}
	return "please check: " + strings.Join(invalid, ", ")
}

// Address converts the form into the snapshot stored on the order. The phone
// is stored normalized.
func (s ShippingInfo) Address() types.Address {
	phone, ok := NormalizePhone(s.Phone)
	if !ok {
		phone = strings.TrimSpace(s.Phone)
	}
	addr := types.Address{
		Name:       strings.TrimSpace(s.Name),
		Phone:      phone,
		Email:      strings.TrimSpace(s.Email),
		Line1:      strings.TrimSpace(s.Line1),
		City:       strings.TrimSpace(s.City),
		State:      strings.TrimSpace(s.State),
		PostalCode: strings.TrimSpace(s.PostalCode),
		Country:    "IN",
	}
	if line2 := strings.TrimSpace(s.Line2); line2 != "" {
		addr.Line2 = &line2
	}
	return addr
}

// ValidPostalCode reports whether code is a 6-digit PIN code.
func ValidPostalCode(code string) bool {
	return postalCodePattern.MatchString(strings.TrimSpace(code))
}
