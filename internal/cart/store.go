package cart

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Line is one cart entry. Prices are resolved from the catalog, never taken
// from the client.
type Line struct {
	VariantID      uuid.UUID `json:"variant_id"`
	ProductID      uuid.UUID `json:"product_id"`
	Title          string    `json:"title"`
	UnitPricePaise int64     `json:"unit_price"`
	Quantity       int       `json:"quantity"`
	Size           *string   `json:"size,omitempty"`
	Color          *string   `json:"color,omitempty"`
	Category       *string   `json:"category,omitempty"`
	Collection     *string   `json:"collection,omitempty"`
}

// LineTotal is unit price times quantity.
func (l Line) LineTotal() int64 {
	return l.UnitPricePaise * int64(l.Quantity)
}

// Store persists the cart of an owner key (see auth.Shopper.Key).
type Store interface {
	Items(ctx context.Context, owner string) ([]Line, error)
	Put(ctx context.Context, owner string, lines []Line) error
	Clearer
}

// Clearer empties a cart. Only checkout holds this capability, and only uses
// it after a terminal success.
type Clearer interface {
	Clear(ctx context.Context, owner string) error
}

// MemoryStore keeps carts in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	carts map[string][]Line
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: map[string][]Line{}}
}

func (m *MemoryStore) Items(_ context.Context, owner string) ([]Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Line(nil), m.carts[owner]...), nil
}

func (m *MemoryStore) Put(_ context.Context, owner string, lines []Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(lines) == 0 {
		delete(m.carts, owner)
		return nil
	}
	m.carts[owner] = append([]Line(nil), lines...)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, owner)
	return nil
}
