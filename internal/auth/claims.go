package auth

import "github.com/golang-jwt/jwt/v5"

// Claims are the only supported JWT claims shape for this service.
// Subject identifies the caller: a carrier integration, a billing operator
// or, for the subscriber role, the subscriber's phone number.
type Claims struct {
	jwt.RegisteredClaims

	Role string `json:"role"`
}
