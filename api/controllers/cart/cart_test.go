package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	cartsvc "github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
)

type stubCartService struct {
	owner     string
	added     cartsvc.AddItemInput
	updatedTo int
	removed   uuid.UUID
	view      *cartsvc.View
}

func (s *stubCartService) Get(_ context.Context, owner string) (*cartsvc.View, error) {
	s.owner = owner
	return s.view, nil
}

func (s *stubCartService) AddItem(_ context.Context, owner string, input cartsvc.AddItemInput) (*cartsvc.View, error) {
	s.owner = owner
	s.added = input
	return s.view, nil
}

func (s *stubCartService) UpdateQuantity(_ context.Context, owner string, _ uuid.UUID, quantity int) (*cartsvc.View, error) {
	s.owner = owner
	s.updatedTo = quantity
	return s.view, nil
}

func (s *stubCartService) RemoveItem(_ context.Context, owner string, variantID uuid.UUID) (*cartsvc.View, error) {
	s.owner = owner
	s.removed = variantID
	return s.view, nil
}

func (s *stubCartService) Snapshot(context.Context, string) ([]cartsvc.Line, error) {
	return nil, nil
}

var guest = auth.Shopper{GuestSessionID: "sess-9"}

func shopperRequest(method, target, body string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rc)
	return req.WithContext(middleware.WithShopper(ctx, guest))
}

func TestCartFetchUsesShopperKey(t *testing.T) {
	svc := &stubCartService{view: &cartsvc.View{Items: []cartsvc.Line{}, SubtotalPaise: 0}}
	resp := httptest.NewRecorder()
	CartFetch(svc, nil).ServeHTTP(resp, shopperRequest(http.MethodGet, "/api/v1/cart", "", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.owner != "guest:sess-9" {
		t.Fatalf("expected guest owner key, got %q", svc.owner)
	}
}

func TestCartFetchRequiresShopper(t *testing.T) {
	resp := httptest.NewRecorder()
	CartFetch(&stubCartService{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCartAddItemRejectsClientPrice(t *testing.T) {
	svc := &stubCartService{view: &cartsvc.View{}}
	variant := uuid.New()
	body := `{"variant_id":"` + variant.String() + `","quantity":2,"unit_price":1}`

	resp := httptest.NewRecorder()
	CartAddItem(svc, nil).ServeHTTP(resp, shopperRequest(http.MethodPost, "/api/v1/cart/items", body, nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for client supplied price, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	CartAddItem(svc, nil).ServeHTTP(resp, shopperRequest(http.MethodPost, "/api/v1/cart/items", `{"variant_id":"`+variant.String()+`","quantity":2}`, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.added.VariantID != variant || svc.added.Quantity != 2 {
		t.Fatalf("unexpected add input %+v", svc.added)
	}
}

func TestCartUpdateItemAcceptsZero(t *testing.T) {
	svc := &stubCartService{view: &cartsvc.View{}, updatedTo: -1}
	variant := uuid.New()

	resp := httptest.NewRecorder()
	CartUpdateItem(svc, nil).ServeHTTP(resp, shopperRequest(http.MethodPatch, "/api/v1/cart/items/"+variant.String(), `{"quantity":0}`, map[string]string{"variantId": variant.String()}))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.updatedTo != 0 {
		t.Fatalf("expected quantity 0 forwarded, got %d", svc.updatedTo)
	}

	resp = httptest.NewRecorder()
	CartUpdateItem(svc, nil).ServeHTTP(resp, shopperRequest(http.MethodPatch, "/api/v1/cart/items/"+variant.String(), `{}`, map[string]string{"variantId": variant.String()}))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when quantity is missing, got %d", resp.Code)
	}
}

func TestCartRemoveItem(t *testing.T) {
	svc := &stubCartService{view: &cartsvc.View{Items: []cartsvc.Line{}}}
	variant := uuid.New()

	resp := httptest.NewRecorder()
	CartRemoveItem(svc, nil).ServeHTTP(resp, shopperRequest(http.MethodDelete, "/api/v1/cart/items/"+variant.String(), "", map[string]string{"variantId": variant.String()}))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.removed != variant {
		t.Fatalf("expected %s removed, got %s", variant, svc.removed)
	}

	var envelope struct {
		Data cartsvc.View `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
