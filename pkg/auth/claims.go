package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/primex-iptv/primex-backend/pkg/enums"
)

// TokenUse distinguishes access tokens from refresh tokens inside the claims.
type TokenUse string

const (
	TokenUseAccess  TokenUse = "access"
	TokenUseRefresh TokenUse = "refresh"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	SubjectID uuid.UUID
	Kind      enums.PrincipalKind
	Username  string
	JTI       string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	SubjectID uuid.UUID           `json:"subject_id"`
	Kind      enums.PrincipalKind `json:"kind"`
	Username  string              `json:"username,omitempty"`
	Use       TokenUse            `json:"token_use"`
	jwt.RegisteredClaims
}
