package auth

import "strings"

// Shopper identifies who is checking out. A signed-in user carries UserID and
// the token profile; a guest carries only the client-persisted session id.
type Shopper struct {
	UserID         string
	GuestSessionID string
	Profile        ShopperProfile
}

// IsGuest reports whether the shopper has no user account.
func (s Shopper) IsGuest() bool {
	return strings.TrimSpace(s.UserID) == ""
}

// Key is the stable owner key for per-shopper state such as the cart and the
// quote sequence. It is empty for an anonymous shopper.
func (s Shopper) Key() string {
	if id := strings.TrimSpace(s.UserID); id != "" {
		return "user:" + id
	}
	if sid := strings.TrimSpace(s.GuestSessionID); sid != "" {
		return "guest:" + sid
	}
	return ""
}
