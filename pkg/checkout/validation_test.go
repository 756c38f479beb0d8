package checkout

import (
	"reflect"
	"testing"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func validInfo() ShippingInfo {
	return ShippingInfo{
		Name:       "Asha Rao",
		Phone:      "+91 98765-43210",
		Email:      "asha@example.in",
		Line1:      "12 MG Road",
		City:       "Pune",
		State:      "Maharashtra",
		PostalCode: "411001",
	}
}

func TestValidateShippingInfo_Valid(t *testing.T) {
	if err := ValidateShippingInfo(validInfo(), "cod"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := ValidateShippingInfo(validInfo(), "ONLINE"); err != nil {
		t.Fatalf("expected case-insensitive method, got %v", err)
	}
}

func TestValidateShippingInfo_MissingFields(t *testing.T) {
	info := validInfo()
	info.Name = " "
	info.City = ""
	err := ValidateShippingInfo(info, "")
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("unexpected details type %T", typed.Details())
	}
	want := []string{"name", "city", "payment_method"}
	if !reflect.DeepEqual(details["missing_fields"], want) {
		t.Fatalf("expected missing %v, got %v", want, details["missing_fields"])
	}
	if _, ok := details["invalid_fields"]; ok {
		t.Fatalf("did not expect invalid fields: %v", details)
	}
}

func TestValidateShippingInfo_InvalidFields(t *testing.T) {
	info := validInfo()
	info.Phone = "12345"
	info.PostalCode = "41100"
	info.Email = "not-an-email"
	err := ValidateShippingInfo(info, "upi")
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error, got %v", err)
	}
	details := typed.Details().(map[string]any)
	want := []string{"phone", "postal_code", "email", "payment_method"}
	if !reflect.DeepEqual(details["invalid_fields"], want) {
		t.Fatalf("expected invalid %v, got %v", want, details["invalid_fields"])
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"9876543210", "9876543210", true},
		{"+91 98765 43210", "9876543210", true},
		{"919876543210", "9876543210", true},
		{"09876543210", "9876543210", true},
		{"(987) 654-3210", "9876543210", true},
		{"5876543210", "5876543210", false},
		{"98765", "98765", false},
	}
	for _, tc := range cases {
		got, ok := NormalizePhone(tc.raw)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("NormalizePhone(%q) = %q, %v; want %q, %v", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestShippingInfoAddress(t *testing.T) {
	info := validInfo()
	info.Line2 = " Flat 4B "
	addr := info.Address()
	if addr.Phone != "9876543210" {
		t.Fatalf("expected normalized phone, got %q", addr.Phone)
	}
	if addr.Line2 == nil || *addr.Line2 != "Flat 4B" {
		t.Fatalf("unexpected line2 %v", addr.Line2)
	}
	if addr.Country != "IN" {
		t.Fatalf("expected IN, got %q", addr.Country)
	}
}

func TestValidPostalCode(t *testing.T) {
	for code, want := range map[string]bool{"400001": true, " 560034 ": true, "012345": false, "40001": false, "4000a1": false} {
		if got := ValidPostalCode(code); got != want {
			t.Fatalf("ValidPostalCode(%q) = %v, want %v", code, got, want)
		}
	}
}
