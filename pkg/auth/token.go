package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken   = errors.New("access token is not set")
	ErrMissingSubject = errors.New("access token has no subject")
)

// Claims is the payload of a marketplace access token.
type Claims struct {
	jwt.RegisteredClaims
	Email       string   `json:"email,omitempty"`
	FullName    string   `json:"full_name,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Identity is who the client acts as when bidding.
type Identity struct {
	UserID      string
	Name        string
	Email       string
	Permissions []string
	ExpiresAt   time.Time
}

// Verifier checks access tokens issued by the auth service.
type Verifier struct {
	publicKey *rsa.PublicKey
	issuer    string
}

// NewVerifier creates a Verifier from a PEM-encoded RSA public key. An empty
// issuer skips the issuer check.
func NewVerifier(publicKeyPEM []byte, issuer string) (*Verifier, error) {
	blockPub, _ := pem.Decode(publicKeyPEM)
	if blockPub == nil {
		return nil, errors.New("failed to parse public key PEM")
	}
	pub, err := x509.ParsePKIXPublicKey(blockPub.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}

	return &Verifier{
		publicKey: rsaPub,
		issuer:    issuer,
	}, nil
}

// ValidateToken parses and verifies the JWT signature.
func (v *Verifier) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.publicKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// IdentityFromToken extracts the bidder identity from an access token. The
// signature is verified when verifier is not nil; otherwise the token is only
// decoded, since the backend re-checks it on every request.
func IdentityFromToken(tokenString string, verifier *Verifier) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	var claims *Claims
	if verifier != nil {
		c, err := verifier.ValidateToken(tokenString)
		if err != nil {
			return nil, fmt.Errorf("failed to validate access token: %w", err)
		}
		claims = c
	} else {
		claims = &Claims{}
		if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
			return nil, fmt.Errorf("failed to decode access token: %w", err)
		}
	}

	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}

	id := &Identity{
		UserID:      claims.Subject,
		Name:        claims.FullName,
		Email:       claims.Email,
		Permissions: claims.Permissions,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	if id.Name == "" {
		id.Name = id.Email
	}
	return id, nil
}
