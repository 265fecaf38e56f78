package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/fintrack-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	SubscriberID uint64
	Role         enums.ActorRole
	JTI          string
}

// AccessTokenClaims represents the typed JWT issued to clients. Admin tokens
// may carry a zero SubscriberID.
type AccessTokenClaims struct {
	SubscriberID uint64          `json:"subscriber_id"`
	Role         enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the bearer may use admin-only routes.
func (c AccessTokenClaims) IsAdmin() bool {
	return c.Role == enums.ActorRoleAdmin
}
