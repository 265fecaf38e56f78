package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/fintrack-backend/pkg/config"
	"github.com/angelmondragon/fintrack-backend/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "fintrack", ExpirationMinutes: 30}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{SubscriberID: 42, Role: enums.ActorRoleSubscriber})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.SubscriberID != 42 {
		t.Fatalf("expected subscriber 42, got %d", claims.SubscriberID)
	}
	if claims.IsAdmin() {
		t.Fatalf("subscriber token should not be admin")
	}
	if claims.Issuer != cfg.Issuer || claims.Subject != "42" {
		t.Fatalf("unexpected registered claims %+v", claims.RegisteredClaims)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti to be generated")
	}
}

func TestParseRejectsWrongSecretAndExpiry(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), AccessTokenPayload{Role: enums.ActorRoleAdmin})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(cfg, token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}

	fresh, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{Role: enums.ActorRoleAdmin})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	other := cfg
	other.Secret = "different"
	if _, err := ParseAccessToken(other, fresh); err == nil {
		t.Fatalf("expected signature mismatch")
	}
}

func TestMintRejectsUnknownRole(t *testing.T) {
	if _, err := MintAccessToken(testJWTConfig(), time.Now(), AccessTokenPayload{Role: "root"}); err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}
}

func TestParseRejectsForeignSigningMethod(t *testing.T) {
	cfg := testJWTConfig()
	claims := AccessTokenClaims{Role: enums.ActorRoleAdmin, RegisteredClaims: jwt.RegisteredClaims{Issuer: cfg.Issuer}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := ParseAccessToken(cfg, unsigned); err == nil {
		t.Fatalf("expected alg=none to be rejected")
	}
}
