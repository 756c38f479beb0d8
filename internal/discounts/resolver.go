package discounts

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/money"
)

// Line is the part of a cart line discount rules look at.
type Line struct {
	UnitPricePaise int64
	Quantity       int
	Category       *string
	Collection     *string
}

// Cart summarises the cart for rule matching.
type Cart struct {
	Subtotal    int64
	ItemCount   int
	categories  map[string]struct{}
	collections map[string]struct{}
}

func NewCart(lines []Line) Cart {
	cart := Cart{
		categories:  map[string]struct{}{},
		collections: map[string]struct{}{},
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		cart.ItemCount += line.Quantity
		if line.UnitPricePaise > 0 {
			cart.Subtotal += line.UnitPricePaise * int64(line.Quantity)
		}
		if line.Category != nil {
			cart.categories[normalizeTag(*line.Category)] = struct{}{}
		}
		if line.Collection != nil {
			cart.collections[normalizeTag(*line.Collection)] = struct{}{}
		}
	}
	return cart
}

func (c Cart) hasCategory(tag string) bool {
	_, ok := c.categories[normalizeTag(tag)]
	return ok
}

func (c Cart) hasCollection(tag string) bool {
	_, ok := c.collections[normalizeTag(tag)]
	return ok
}

func normalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// AppliedCampaign is a campaign that matched the cart and its discount.
type AppliedCampaign struct {
	CampaignID uuid.UUID          `json:"campaign_id"`
	Name       string             `json:"name"`
	Type       enums.DiscountType `json:"discount_type"`
	Amount     int64              `json:"amount"`
	Stackable  bool               `json:"stackable"`
}

// Eligible reports whether the campaign's rules hold for the cart at now.
func Eligible(c models.Campaign, cart Cart, now time.Time) bool {
	if !c.Active {
		return false
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return false
	}
	if c.EndsAt != nil && !now.Before(*c.EndsAt) {
		return false
	}
	if cart.Subtotal < c.MinCartValuePaise || cart.ItemCount < c.MinItemCount {
		return false
	}
	if c.Category != nil && strings.TrimSpace(*c.Category) != "" && !cart.hasCategory(*c.Category) {
		return false
	}
	if c.Collection != nil && strings.TrimSpace(*c.Collection) != "" && !cart.hasCollection(*c.Collection) {
		return false
	}
	return true
}

// Amount computes a flat or percentage discount on subtotal. Flat values are
// paise and capped at the subtotal; percentages honour maxDiscount when set.
func Amount(kind enums.DiscountType, value decimal.Decimal, maxDiscount *int64, subtotal int64) int64 {
	if subtotal <= 0 || !value.IsPositive() {
		return 0
	}
	var amount int64
	switch kind {
	case enums.DiscountTypeFlat:
		amount = money.Min(value.Round(0).IntPart(), subtotal)
	case enums.DiscountTypePercentage:
		amount = money.Percent(subtotal, value)
		if maxDiscount != nil && *maxDiscount >= 0 {
			amount = money.Min(amount, *maxDiscount)
		}
	default:
		return 0
	}
	return money.Min(money.NonNegative(amount), subtotal)
}

// rank orders campaigns by priority desc, created_at desc, id asc.
func rank(campaigns []models.Campaign) {
	sort.SliceStable(campaigns, func(i, j int) bool {
		a, b := campaigns[i], campaigns[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return strings.Compare(a.ID.String(), b.ID.String()) < 0
	})
}

func eligibleRanked(cart Cart, campaigns []models.Campaign, now time.Time) []models.Campaign {
	eligible := make([]models.Campaign, 0, len(campaigns))
	for _, c := range campaigns {
		if Eligible(c, cart, now) {
			eligible = append(eligible, c)
		}
	}
	rank(eligible)
	return eligible
}

func apply(c models.Campaign, subtotal int64) AppliedCampaign {
	return AppliedCampaign{
		CampaignID: c.ID,
		Name:       c.Name,
		Type:       c.DiscountType,
		Amount:     Amount(c.DiscountType, c.DiscountValue, c.MaxDiscountPaise, subtotal),
		Stackable:  c.Stackable,
	}
}

// Resolve picks the primary automatic campaign, or nil when none matches.
func Resolve(cart Cart, campaigns []models.Campaign, now time.Time) *AppliedCampaign {
	eligible := eligibleRanked(cart, campaigns, now)
	if len(eligible) == 0 {
		return nil
	}
	applied := apply(eligible[0], cart.Subtotal)
	return &applied
}

// ResolveStack returns the primary campaign followed by every other eligible
// stackable campaign in rank order. The summed discount never exceeds the
// subtotal; a campaign that would overflow it is trimmed to the remainder.
func ResolveStack(cart Cart, campaigns []models.Campaign, now time.Time) []AppliedCampaign {
	eligible := eligibleRanked(cart, campaigns, now)
	if len(eligible) == 0 {
		return nil
	}
	remaining := cart.Subtotal
	out := make([]AppliedCampaign, 0, len(eligible))
	for i, c := range eligible {
		if i > 0 && !c.Stackable {
			continue
		}
		if remaining <= 0 {
			break
		}
		applied := apply(c, cart.Subtotal)
		applied.Amount = money.Min(applied.Amount, remaining)
		remaining -= applied.Amount
		out = append(out, applied)
	}
	return out
}

// Sum adds up campaign discounts.
func Sum(applied []AppliedCampaign) int64 {
	var total int64
	for _, a := range applied {
		total += a.Amount
	}
	return total
}
