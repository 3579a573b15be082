package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "tgsessiond",
		Audience: "control",
		TTL:      time.Hour,
	}
}

func TestTokenRoundTrip(t *testing.T) {
	cfg := testConfig()

	token, err := GenerateToken(cfg, "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ValidateToken(cfg, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Operator != "alice" || claims.Subject != "alice" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.ExpiresAt == nil {
		t.Fatalf("expected expiry to be set")
	}
}

func TestTokenWithoutTTLDoesNotExpire(t *testing.T) {
	cfg := testConfig()
	cfg.TTL = 0

	token, err := GenerateToken(cfg, "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ValidateToken(cfg, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.ExpiresAt != nil {
		t.Fatalf("expected no expiry, got %v", claims.ExpiresAt)
	}
}

func TestValidateRejects(t *testing.T) {
	cfg := testConfig()
	token, err := GenerateToken(cfg, "alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	other := testConfig()
	other.Secret = []byte("another-secret")
	if _, err := ValidateToken(other, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret: expected ErrInvalidToken, got %v", err)
	}

	other = testConfig()
	other.Audience = "someone-else"
	if _, err := ValidateToken(other, token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong audience: expected ErrInvalidToken, got %v", err)
	}

	stale := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Operator: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := stale.SignedString(cfg.Secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := ValidateToken(cfg, signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired: expected ErrInvalidToken, got %v", err)
	}

	if _, err := ValidateToken(cfg, "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage: expected ErrInvalidToken, got %v", err)
	}
}

func TestGenerateRequiresSecretAndOperator(t *testing.T) {
	if _, err := GenerateToken(&JWTConfig{}, "alice"); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
	if _, err := GenerateToken(testConfig(), ""); !errors.Is(err, ErrNoOperator) {
		t.Fatalf("expected ErrNoOperator, got %v", err)
	}
}
