package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Helper to generate a fresh key pair for each test
func generateTestKeys(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate RSA key: %v", err)
	}

	pubBytes, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		t.Fatalf("Failed to marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubBytes,
	})

	return privateKey, pubPEM
}

// mintToken signs claims the way the auth service does.
func mintToken(t *testing.T, key *rsa.PrivateKey, claims *Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return token
}

func testClaims(subject, issuer string) *Claims {
	now := time.Now()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(15 * time.Minute)),
		},
		Email:    "test@example.com",
		FullName: "Test User",
	}
}

func TestValidateToken(t *testing.T) {
	key, pubPEM := generateTestKeys(t)
	verifier, err := NewVerifier(pubPEM, "test-issuer")
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}

	userID := uuid.NewString()
	token := mintToken(t, key, testClaims(userID, "test-issuer"))

	claims, err := verifier.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Subject != userID {
		t.Errorf("got subject %s, want %s", claims.Subject, userID)
	}
	if claims.FullName != "Test User" {
		t.Errorf("got name %s, want Test User", claims.FullName)
	}
}

func TestSecurityScenarios(t *testing.T) {
	key, pubPEM := generateTestKeys(t)
	verifier, _ := NewVerifier(pubPEM, "test-issuer")

	validClaims := testClaims(uuid.NewString(), "test-issuer")
	validClaims.Email = "hacker@example.com"

	t.Run("Rejects Expired Token", func(t *testing.T) {
		expired := *validClaims
		expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

		if _, err := verifier.ValidateToken(mintToken(t, key, &expired)); err == nil {
			t.Error("ValidateToken should have rejected expired token")
		}
	})

	t.Run("Rejects Wrong Key Signature", func(t *testing.T) {
		attackerKey, _ := generateTestKeys(t)

		if _, err := verifier.ValidateToken(mintToken(t, attackerKey, validClaims)); err == nil {
			t.Error("ValidateToken should have rejected token signed by wrong key")
		}
	})

	t.Run("Rejects HMAC Algorithm Confusion", func(t *testing.T) {
		tokenString, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims).SignedString([]byte("some-secret"))

		_, err := verifier.ValidateToken(tokenString)
		if err == nil {
			t.Fatal("ValidateToken should have rejected HS256 algorithm")
		}
		if !strings.Contains(err.Error(), "signing method HS256 is invalid") &&
			!strings.Contains(err.Error(), "unexpected signing method: HS256") {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Rejects Foreign Issuer", func(t *testing.T) {
		foreign := *validClaims
		foreign.Issuer = "someone-else"

		if _, err := verifier.ValidateToken(mintToken(t, key, &foreign)); err == nil {
			t.Error("ValidateToken should have rejected foreign issuer")
		}
	})

	t.Run("Rejects Malformed Token", func(t *testing.T) {
		if _, err := verifier.ValidateToken("this.is.garbage"); err == nil {
			t.Error("Should reject malformed string")
		}
	})
}

func TestNewVerifierValidation(t *testing.T) {
	t.Run("Fails on invalid PEM", func(t *testing.T) {
		if _, err := NewVerifier([]byte("not-a-pem"), "test-issuer"); err == nil {
			t.Error("Should fail on invalid public key")
		}
	})

	t.Run("Fails on non-RSA key", func(t *testing.T) {
		block := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: []byte("garbage")})
		if _, err := NewVerifier(block, "test-issuer"); err == nil {
			t.Error("Should fail on unparseable public key")
		}
	})
}

func TestIdentityFromToken(t *testing.T) {
	key, pubPEM := generateTestKeys(t)
	verifier, _ := NewVerifier(pubPEM, "test-issuer")

	claims := testClaims("user-42", "test-issuer")
	claims.Email = "ada@example.com"
	claims.FullName = ""
	token := mintToken(t, key, claims)

	t.Run("Verified", func(t *testing.T) {
		id, err := IdentityFromToken(token, verifier)
		if err != nil {
			t.Fatalf("IdentityFromToken failed: %v", err)
		}
		if id.UserID != "user-42" || id.Name != "ada@example.com" {
			t.Errorf("unexpected identity %+v", id)
		}
		if id.ExpiresAt.IsZero() {
			t.Error("expected expiry to be set")
		}
	})

	t.Run("Unverified", func(t *testing.T) {
		id, err := IdentityFromToken(token, nil)
		if err != nil {
			t.Fatalf("IdentityFromToken failed: %v", err)
		}
		if id.UserID != "user-42" {
			t.Errorf("got subject %s, want user-42", id.UserID)
		}
	})

	t.Run("Missing subject", func(t *testing.T) {
		anonymous := mintToken(t, key, testClaims("", "test-issuer"))
		if _, err := IdentityFromToken(anonymous, verifier); err != ErrMissingSubject {
			t.Errorf("got %v, want ErrMissingSubject", err)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		if _, err := IdentityFromToken("", nil); err != ErrMissingToken {
			t.Errorf("got %v, want ErrMissingToken", err)
		}
	})

	t.Run("Garbage", func(t *testing.T) {
		if _, err := IdentityFromToken("not-a-jwt", nil); err == nil {
			t.Error("expected decode error")
		}
	})
}
