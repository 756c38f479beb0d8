package auth

import "github.com/golang-jwt/jwt/v5"

// ShopperProfile is what the identity provider knows about a signed-in shopper.
type ShopperProfile struct {
	UserID string
	Email  string
	Name   string
	Phone  string
}

// ShopperClaims is the JWT issued by the identity provider. The user id is
// the subject.
type ShopperClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	jwt.RegisteredClaims
}

// Profile flattens the claims.
func (c *ShopperClaims) Profile() ShopperProfile {
	return ShopperProfile{
		UserID: c.Subject,
		Email:  c.Email,
		Name:   c.Name,
		Phone:  c.Phone,
	}
}
