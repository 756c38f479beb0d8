package cart

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

type fakeDocuments struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeDocuments) Get(_ context.Context, key string) (string, error) {
	v, ok := f.values[key]
	if !ok {
		return "", redis.ErrNil
	}
	return v, nil
}

func (f *fakeDocuments) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.values[key] = string(value.([]byte))
	f.ttls[key] = ttl
	return nil
}

func (f *fakeDocuments) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

func (f *fakeDocuments) CartKey(owner string) string { return "sf:cart:" + owner }

func TestRedisStoreRoundTrip(t *testing.T) {
	t.Parallel()

	docs := newFakeDocuments()
	store, err := NewRedisStore(docs, 0)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	lines, err := store.Items(ctx, owner)
	if err != nil || lines != nil {
		t.Fatalf("expected empty cart, got %v %v", lines, err)
	}

	want := []Line{{VariantID: uuid.New(), Title: "Kurta", UnitPricePaise: 49900, Quantity: 2}}
	if err := store.Put(ctx, owner, want); err != nil {
		t.Fatalf("put: %v", err)
	}
	if ttl := docs.ttls["sf:cart:"+owner]; ttl != defaultCartTTL {
		t.Fatalf("expected default ttl, got %v", ttl)
	}

	got, err := store.Items(ctx, owner)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if len(got) != 1 || got[0].VariantID != want[0].VariantID || got[0].Quantity != 2 {
		t.Fatalf("unexpected lines %+v", got)
	}

	if err := store.Put(ctx, owner, nil); err != nil {
		t.Fatalf("put empty: %v", err)
	}
	if _, ok := docs.values["sf:cart:"+owner]; ok {
		t.Fatal("empty put should delete the document")
	}
}

func TestRedisStoreRejectsCorruptDocument(t *testing.T) {
	t.Parallel()

	docs := newFakeDocuments()
	docs.values["sf:cart:"+owner] = "{not json"
	store, _ := NewRedisStore(docs, time.Hour)
	if _, err := store.Items(context.Background(), owner); err == nil {
		t.Fatal("expected decode error")
	}
}
