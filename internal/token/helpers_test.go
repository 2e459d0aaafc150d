// file: internal/token/helpers_test.go

package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync/atomic"
	"time"
)

// testKey is a 2048-bit RSA key generated once per test binary
var testKey = generateTestKey()

var testKeyPEM = string(pem.EncodeToMemory(&pem.Block{
	Type:  "RSA PRIVATE KEY",
	Bytes: x509.MarshalPKCS1PrivateKey(testKey),
}))

func generateTestKey() *rsa.PrivateKey {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic("generating test RSA key: " + err.Error())
	}
	return key
}

// fakeExchanger records calls and answers from respond
type fakeExchanger struct {
	calls   atomic.Int64
	lastJWT atomic.Value
	respond func(ctx context.Context, n int64) (Credential, error)
}

func (e *fakeExchanger) CreateInstallationToken(ctx context.Context, installationID int64, appJWT string) (Credential, error) {
	n := e.calls.Add(1)
	e.lastJWT.Store(appJWT)
	return e.respond(ctx, n)
}

// staticResponse hands out a distinct token per call, each valid for ttl from now()
func staticResponse(now func() time.Time, ttl time.Duration) func(context.Context, int64) (Credential, error) {
	return func(_ context.Context, n int64) (Credential, error) {
		return Credential{
			Value:     "ghs_" + string(rune('a'+n-1)),
			ExpiresAt: now().Add(ttl),
		}, nil
	}
}
