package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	OwnerID string
	JTI     string
}

// AccessTokenClaims is the bearer token issued by the identity service. The
// owner id is opaque to this service.
type AccessTokenClaims struct {
	OwnerID string `json:"owner_id"`
	jwt.RegisteredClaims
}
