package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type samplePayload struct {
	Method   string `json:"payment_method" validate:"required,oneof=cod online"`
	Quantity int    `json:"quantity" validate:"min=1"`
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"payment_method":"upi","quantity":0}`))
	var payload samplePayload
	err := DecodeJSONBody(req, &payload)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %T", pkgerrors.As(err).Details())
	}
	if details["payment_method"] != "must be one of cod online" {
		t.Fatalf("unexpected payment_method message %q", details["payment_method"])
	}
	if details["quantity"] != "must be at least 1" {
		t.Fatalf("unexpected quantity message %q", details["quantity"])
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"payment_method":"cod","quantity":1,"price":1}`))
	var payload samplePayload
	if err := DecodeJSONBody(req, &payload); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected unknown field to be rejected, got %v", err)
	}
}

func TestParseUUIDParam(t *testing.T) {
	withParam := func(value string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rc := chi.NewRouteContext()
		rc.URLParams.Add("orderId", value)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	}

	if _, err := ParseUUIDParam(withParam("not-a-uuid"), "orderId"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	id, err := ParseUUIDParam(withParam("6f1c2a9e-3b7d-4c55-9a51-2f0f6f4d8e10"), "orderId")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.String() != "6f1c2a9e-3b7d-4c55-9a51-2f0f6f4d8e10" {
		t.Fatalf("unexpected id %s", id)
	}
}
