package cart

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const (
	defaultMaxLines    = 50
	defaultMaxQuantity = 20
)

type variantLoader interface {
	FindVariant(ctx context.Context, id uuid.UUID) (*models.ProductVariant, error)
	FindActiveByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.ProductVariant, error)
}

// Service exposes shopper cart mutations. It cannot clear a cart.
type Service interface {
	Get(ctx context.Context, owner string) (*View, error)
	AddItem(ctx context.Context, owner string, input AddItemInput) (*View, error)
	UpdateQuantity(ctx context.Context, owner string, variantID uuid.UUID, quantity int) (*View, error)
	RemoveItem(ctx context.Context, owner string, variantID uuid.UUID) (*View, error)
	Snapshot(ctx context.Context, owner string) ([]Line, error)
}

type Limits struct {
	MaxLines    int
	MaxQuantity int
}

type service struct {
	store    Store
	variants variantLoader
	limits   Limits
}

func NewService(store Store, variants variantLoader, limits Limits) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("cart store required")
	}
	if variants == nil {
		return nil, fmt.Errorf("variant loader required")
	}
	if limits.MaxLines <= 0 {
		limits.MaxLines = defaultMaxLines
	}
	if limits.MaxQuantity <= 0 {
		limits.MaxQuantity = defaultMaxQuantity
	}
	return &service{store: store, variants: variants, limits: limits}, nil
}

// AddItemInput adds quantity units of a variant.
type AddItemInput struct {
	VariantID uuid.UUID
	Quantity  int
}

// View is the cart as returned to the shopper.
type View struct {
	Items         []Line `json:"items"`
	ItemCount     int    `json:"item_count"`
	SubtotalPaise int64  `json:"subtotal"`
}

func newView(lines []Line) *View {
	if lines == nil {
		lines = []Line{}
	}
	return &View{Items: lines, ItemCount: TotalQuantity(lines), SubtotalPaise: Subtotal(lines)}
}

func (s *service) Get(ctx context.Context, owner string) (*View, error) {
	lines, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	return newView(lines), nil
}

func (s *service) AddItem(ctx context.Context, owner string, input AddItemInput) (*View, error) {
	if input.VariantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant_id is required")
	}
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	lines, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	variant, err := s.variants.FindVariant(ctx, input.VariantID)
	if err != nil {
		return nil, err
	}

	idx := indexOf(lines, input.VariantID)
	if idx < 0 {
		if len(lines) >= s.limits.MaxLines {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cart cannot hold more than %d items", s.limits.MaxLines))
		}
		lines = append(lines, Line{VariantID: variant.ID})
		idx = len(lines) - 1
	}
	qty := lines[idx].Quantity + input.Quantity
	if err := s.checkQuantity(qty); err != nil {
		return nil, err
	}
	lines[idx] = lineFromVariant(*variant, qty)
	return s.save(ctx, owner, lines)
}

// UpdateQuantity sets the quantity of a line. Zero removes it.
func (s *service) UpdateQuantity(ctx context.Context, owner string, variantID uuid.UUID, quantity int) (*View, error) {
	if quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, owner, variantID)
	}
	if err := s.checkQuantity(quantity); err != nil {
		return nil, err
	}
	lines, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	idx := indexOf(lines, variantID)
	if idx < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not in cart")
	}
	variant, err := s.variants.FindVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	lines[idx] = lineFromVariant(*variant, quantity)
	return s.save(ctx, owner, lines)
}

func (s *service) RemoveItem(ctx context.Context, owner string, variantID uuid.UUID) (*View, error) {
	lines, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	idx := indexOf(lines, variantID)
	if idx < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not in cart")
	}
	lines = append(lines[:idx], lines[idx+1:]...)
	return s.save(ctx, owner, lines)
}

// Snapshot returns the cart repriced against the live catalog. A line whose
// variant is gone fails the snapshot; the stored cart is left untouched.
func (s *service) Snapshot(ctx context.Context, owner string) ([]Line, error) {
	lines, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.VariantID)
	}
	variants, err := s.variants.FindActiveByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Line, 0, len(lines))
	var unavailable []string
	for _, line := range lines {
		v, ok := variants[line.VariantID]
		if !ok {
			unavailable = append(unavailable, line.VariantID.String())
			continue
		}
		out = append(out, lineFromVariant(v, line.Quantity))
	}
	if len(unavailable) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "some items in your cart are no longer available").
			WithDetails(map[string]any{"unavailable_variants": unavailable})
	}
	return out, nil
}

func (s *service) checkQuantity(qty int) error {
	if qty > s.limits.MaxQuantity {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity cannot exceed %d", s.limits.MaxQuantity))
	}
	return nil
}

func (s *service) load(ctx context.Context, owner string) ([]Line, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "shopper identity required")
	}
	lines, err := s.store.Items(ctx, owner)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return lines, nil
}

func (s *service) save(ctx context.Context, owner string, lines []Line) (*View, error) {
	if err := s.store.Put(ctx, owner, lines); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
	}
	return newView(lines), nil
}

func indexOf(lines []Line, variantID uuid.UUID) int {
	for i, line := range lines {
		if line.VariantID == variantID {
			return i
		}
	}
	return -1
}

func lineFromVariant(v models.ProductVariant, qty int) Line {
	return Line{
		VariantID:      v.ID,
		ProductID:      v.ProductID,
		Title:          v.Title,
		UnitPricePaise: v.PricePaise,
		Quantity:       qty,
		Size:           v.Size,
		Color:          v.Color,
		Category:       v.Category,
		Collection:     v.Collection,
	}
}
