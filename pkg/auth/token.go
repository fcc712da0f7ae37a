package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/primex-iptv/primex-backend/pkg/config"
	"github.com/primex-iptv/primex-backend/pkg/enums"
)

var jwtSigningMethod = jwt.SigningMethodHS256

func secretFor(cfg config.JWTConfig, kind enums.PrincipalKind) (string, error) {
	switch kind {
	case enums.PrincipalKindAccount:
		if cfg.AccountSecret == "" {
			return "", fmt.Errorf("account jwt secret is required")
		}
		return cfg.AccountSecret, nil
	case enums.PrincipalKindOperator:
		if cfg.OperatorSecret == "" {
			return "", fmt.Errorf("operator jwt secret is required")
		}
		return cfg.OperatorSecret, nil
	default:
		return "", fmt.Errorf("invalid principal kind %q", kind)
	}
}

func ttlFor(cfg config.JWTConfig, kind enums.PrincipalKind) time.Duration {
	if kind == enums.PrincipalKindOperator {
		return cfg.OperatorTTL()
	}
	return cfg.AccountTTL()
}

// MintAccessToken issues a signed JWT for the provided payload using the
// per-kind secret and TTL.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	secret, err := secretFor(cfg, payload.Kind)
	if err != nil {
		return "", err
	}
	ttl := ttlFor(cfg, payload.Kind)
	return mint(secret, cfg.Issuer, now, ttl, payload, TokenUseAccess)
}

// MintRefreshToken issues a long-lived refresh JWT for a subscriber account.
// Operators refresh via their DB-backed session instead.
func MintRefreshToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	if payload.Kind != enums.PrincipalKindAccount {
		return "", fmt.Errorf("refresh tokens are account-only")
	}
	return mint(cfg.RefreshSigningSecret(), cfg.Issuer, now, cfg.RefreshTTL(), payload, TokenUseRefresh)
}

func mint(secret, issuer string, now time.Time, ttl time.Duration, payload AccessTokenPayload, use TokenUse) (string, error) {
	if issuer == "" {
		return "", fmt.Errorf("jwt issuer is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("jwt ttl must be positive")
	}
	if !payload.Kind.IsValid() {
		return "", fmt.Errorf("invalid principal kind %q", payload.Kind)
	}

	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	claims := AccessTokenClaims{
		SubjectID: payload.SubjectID,
		Kind:      payload.Kind,
		Username:  payload.Username,
		Use:       use,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwtSigningMethod, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken validates an access JWT for the expected principal kind
// and returns typed claims.
func ParseAccessToken(cfg config.JWTConfig, kind enums.PrincipalKind, tokenString string) (*AccessTokenClaims, error) {
	secret, err := secretFor(cfg, kind)
	if err != nil {
		return nil, err
	}
	claims, err := parse(secret, cfg.Issuer, tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Use != TokenUseAccess {
		return nil, fmt.Errorf("token is not an access token")
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("unexpected principal kind %q", claims.Kind)
	}
	return claims, nil
}

// ParseRefreshToken validates a refresh JWT and returns typed claims.
func ParseRefreshToken(cfg config.JWTConfig, tokenString string) (*AccessTokenClaims, error) {
	claims, err := parse(cfg.RefreshSigningSecret(), cfg.Issuer, tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Use != TokenUseRefresh {
		return nil, fmt.Errorf("token is not a refresh token")
	}
	return claims, nil
}

func parse(secret, issuer, tokenString string) (*AccessTokenClaims, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(secret), nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return nil, err
	}

	return claims, nil
}
