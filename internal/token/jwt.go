// file: internal/token/jwt.go

package token

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// appJWTLifetime is the longest lifetime GitHub accepts for an App JWT
	appJWTLifetime = 10 * time.Minute

	// appJWTBackdate covers clock drift between us and GitHub
	appJWTBackdate = 60 * time.Second
)

// ParsePrivateKey parses a PKCS#1 or PKCS#8 RSA key in PEM form
func ParsePrivateKey(pemKey string) (*rsa.PrivateKey, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, fmt.Errorf("parse RSA private key: %w", err)
	}
	return key, nil
}

// SignAppJWT builds the RS256 assertion GitHub expects from an App:
// iss = App ID, iat backdated for drift, exp ten minutes out.
func SignAppJWT(key *rsa.PrivateKey, appID string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    appID,
		IssuedAt:  jwt.NewNumericDate(now.Add(-appJWTBackdate)),
		ExpiresAt: jwt.NewNumericDate(now.Add(appJWTLifetime)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign app JWT: %w", err)
	}
	return signed, nil
}
