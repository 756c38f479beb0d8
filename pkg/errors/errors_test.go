package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized},
		{code: CodeNotFound, status: http.StatusNotFound},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, retryable: true, detailsOK: true},
		{code: CodeQuoteUnavailable, status: http.StatusServiceUnavailable, retryable: true},
		{code: CodeCODUnavailable, status: http.StatusUnprocessableEntity, detailsOK: true},
		{code: CodeCustomerResolution, status: http.StatusBadGateway, retryable: true},
		{code: CodeOrderCreation, status: http.StatusInternalServerError, retryable: true},
		{code: CodePaymentInitiation, status: http.StatusBadGateway, retryable: true, detailsOK: true},
		{code: CodePaymentVerification, status: http.StatusPaymentRequired, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage == "" {
			t.Fatalf("code %s has no public message", tt.code)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestPublicMessageHidesInternalText(t *testing.T) {
	err := Wrap(CodeOrderCreation, stdErrors.New("pq: deadlock"), "insert order")
	if got := err.PublicMessage(); got != MetadataFor(CodeOrderCreation).PublicMessage {
		t.Fatalf("expected generic public message, got %q", got)
	}

	cod := New(CodeCODUnavailable, "Cash on delivery is available up to ₹2000.")
	if got := cod.PublicMessage(); got != "Cash on delivery is available up to ₹2000." {
		t.Fatalf("expected exposed message, got %q", got)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}
	base.WithDetails(map[string]any{"field": "foo"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
}

func TestAsAndIsCodeFollowChain(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeQuoteUnavailable, "shipping down"))
	if got := As(err); got == nil || got.Code() != CodeQuoteUnavailable {
		t.Fatalf("As failed to return typed error")
	}
	if !IsCode(err, CodeQuoteUnavailable) {
		t.Fatalf("expected IsCode to match")
	}
	if IsCode(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("plain errors carry no code")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}
