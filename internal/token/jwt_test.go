// file: internal/token/jwt_test.go

package token

import (
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestSignAppJWT_Claims(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	signed, err := SignAppJWT(testKey, "app-1", now)
	if err != nil {
		t.Fatalf("SignAppJWT() unexpected error: %v", err)
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(signed, claims,
		func(*jwt.Token) (interface{}, error) { return &testKey.PublicKey, nil },
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		t.Fatalf("signature did not verify: %v", err)
	}

	if parsed.Header["alg"] != "RS256" {
		t.Errorf("alg = %v, want RS256", parsed.Header["alg"])
	}
	if claims.Issuer != "app-1" {
		t.Errorf("iss = %q, want %q", claims.Issuer, "app-1")
	}
	if want := now.Add(-60 * time.Second); !claims.IssuedAt.Time.Equal(want) {
		t.Errorf("iat = %v, want %v", claims.IssuedAt.Time, want)
	}
	if want := now.Add(10 * time.Minute); !claims.ExpiresAt.Time.Equal(want) {
		t.Errorf("exp = %v, want %v", claims.ExpiresAt.Time, want)
	}
}

func TestSignAppJWT_WrongKeyFailsVerification(t *testing.T) {
	now := time.Now()
	signed, err := SignAppJWT(testKey, "app-1", now)
	if err != nil {
		t.Fatalf("SignAppJWT() unexpected error: %v", err)
	}

	other := generateTestKey()
	_, err = jwt.Parse(signed, func(*jwt.Token) (interface{}, error) { return &other.PublicKey, nil })
	if err == nil {
		t.Error("verification with a different key should fail")
	}
}

func TestParsePrivateKey(t *testing.T) {
	pkcs8, err := x509.MarshalPKCS8PrivateKey(testKey)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey: %v", err)
	}
	pkcs8PEM := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}))

	tests := []struct {
		name    string
		pem     string
		wantErr bool
	}{
		{"pkcs1", testKeyPEM, false},
		{"pkcs8", pkcs8PEM, false},
		{"not pem", "hello", true},
		{"empty", "", true},
		{"truncated", testKeyPEM[:120], true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParsePrivateKey(tt.pem)
			if tt.wantErr {
				if err == nil {
					t.Error("ParsePrivateKey() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePrivateKey() unexpected error: %v", err)
			}
			if !key.PublicKey.Equal(&testKey.PublicKey) {
				t.Error("parsed key does not match the test key")
			}
		})
	}
}
