package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/primex-iptv/primex-backend/pkg/config"
	"github.com/primex-iptv/primex-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Issuer:                  "primex",
		AccountSecret:           "account-secret",
		OperatorSecret:          "operator-secret",
		AccountExpirationHours:  24,
		OperatorExpirationHours: 8,
		RefreshSecret:           "refresh-secret",
		RefreshExpirationHours:  168,
	}
}

func TestMintAndParseAccountAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	subjectID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		SubjectID: subjectID,
		Kind:      enums.PrincipalKindAccount,
		Username:  "user_1700000000000_ab12cd34",
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, enums.PrincipalKindAccount, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}

	if claims.SubjectID != subjectID {
		t.Fatalf("expected subject_id %s, got %s", subjectID, claims.SubjectID)
	}
	if claims.Kind != enums.PrincipalKindAccount {
		t.Fatalf("unexpected kind %s", claims.Kind)
	}
	if claims.Use != TokenUseAccess {
		t.Fatalf("unexpected token use %s", claims.Use)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("expected issuer %s, got %s", cfg.Issuer, claims.Issuer)
	}

	exp := now.Add(cfg.AccountTTL())
	diff := claims.ExpiresAt.Sub(exp)
	if diff < 0 {
		diff = -diff
	}
	if diff >= time.Second {
		t.Fatalf("expected exp roughly %v, got %v (diff %v)", exp.UTC(), claims.ExpiresAt.UTC(), diff)
	}
}

func TestAccessTokenSecretsAreKindScoped(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		SubjectID: uuid.New(),
		Kind:      enums.PrincipalKindAccount,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	if _, err := ParseAccessToken(cfg, enums.PrincipalKindOperator, token); err == nil {
		t.Fatal("expected account token to fail operator parsing")
	}
}

func TestMintRefreshTokenRejectsOperators(t *testing.T) {
	cfg := testJWTConfig()
	_, err := MintRefreshToken(cfg, time.Now(), AccessTokenPayload{
		SubjectID: uuid.New(),
		Kind:      enums.PrincipalKindOperator,
	})
	if err == nil {
		t.Fatal("expected error for operator refresh token")
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	subjectID := uuid.New()

	token, err := MintRefreshToken(cfg, now, AccessTokenPayload{
		SubjectID: subjectID,
		Kind:      enums.PrincipalKindAccount,
	})
	if err != nil {
		t.Fatalf("mint refresh token: %v", err)
	}

	claims, err := ParseRefreshToken(cfg, token)
	if err != nil {
		t.Fatalf("parse refresh token: %v", err)
	}
	if claims.SubjectID != subjectID {
		t.Fatalf("subject id mismatch")
	}
	if claims.Use != TokenUseRefresh {
		t.Fatalf("unexpected token use %s", claims.Use)
	}

	// A refresh token must never pass as an access token.
	if _, err := ParseAccessToken(cfg, enums.PrincipalKindAccount, token); err == nil {
		t.Fatal("expected refresh token to fail access parsing")
	}
}

func TestParseAccessTokenInvalidSignature(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		SubjectID: uuid.New(),
		Kind:      enums.PrincipalKindAccount,
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	tampered := cfg
	tampered.AccountSecret = "other-secret"
	if _, err := ParseAccessToken(tampered, enums.PrincipalKindAccount, token); err == nil {
		t.Fatal("expected signature validation to fail")
	}
	if !strings.Contains(token, ".") {
		t.Fatal("token is not a JWT")
	}
}
