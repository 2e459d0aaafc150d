// file: internal/github/client_test.go

package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"install-credentials/internal/token"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, retryMax int) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{BaseURL: server.URL, RetryMax: retryMax, Timeout: 5 * time.Second}, nil)
	if err != nil {
		t.Fatalf("NewClient() unexpected error: %v", err)
	}
	// Keep retry tests fast.
	client.http.RetryWaitMin = time.Millisecond
	client.http.RetryWaitMax = 5 * time.Millisecond
	return client, server
}

func TestCreateInstallationToken_Success(t *testing.T) {
	expiresAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/app/installations/12345/access_tokens" {
			t.Errorf("path = %s, want /app/installations/12345/access_tokens", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer signed.jwt.value" {
			t.Errorf("Authorization = %q, want Bearer signed.jwt.value", got)
		}
		if got := r.Header.Get("Accept"); got != "application/vnd.github+json" {
			t.Errorf("Accept = %q", got)
		}
		if got := r.Header.Get("X-GitHub-Api-Version"); got != "2022-11-28" {
			t.Errorf("X-GitHub-Api-Version = %q", got)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"token":"ghs_abc","expires_at":%q,"permissions":{"contents":"write"}}`, expiresAt.Format(time.RFC3339))
	}, 0)

	cred, err := client.CreateInstallationToken(context.Background(), 12345, "signed.jwt.value")
	if err != nil {
		t.Fatalf("CreateInstallationToken() unexpected error: %v", err)
	}
	if cred.Value != "ghs_abc" {
		t.Errorf("Value = %q, want ghs_abc", cred.Value)
	}
	if !cred.ExpiresAt.Equal(expiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", cred.ExpiresAt, expiresAt)
	}
}

func TestCreateInstallationToken_APIError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		check       func(error) bool
	}{
		{
			name:        "unauthorized json body",
			status:      http.StatusUnauthorized,
			body:        `{"message":"A JSON web token could not be decoded","documentation_url":"https://docs.github.com"}`,
			wantMessage: "A JSON web token could not be decoded",
			check:       IsUnauthorized,
		},
		{
			name:        "not found",
			status:      http.StatusNotFound,
			body:        `{"message":"Not Found"}`,
			wantMessage: "Not Found",
			check:       IsNotFound,
		},
		{
			name:        "plain text body",
			status:      http.StatusForbidden,
			body:        "forbidden\n",
			wantMessage: "forbidden",
			check:       IsUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}, 2)

			_, err := client.CreateInstallationToken(context.Background(), 1, "jwt")

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *APIError", err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.status)
			}
			if apiErr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMessage)
			}
			if !tt.check(err) {
				t.Errorf("classification helper returned false for %v", err)
			}
		})
	}
}

func TestCreateInstallationToken_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"token":"ghs_retry","expires_at":%q}`, time.Now().Add(time.Hour).Format(time.RFC3339))
	}, 2)

	cred, err := client.CreateInstallationToken(context.Background(), 1, "jwt")
	if err != nil {
		t.Fatalf("CreateInstallationToken() unexpected error: %v", err)
	}
	if cred.Value != "ghs_retry" {
		t.Errorf("Value = %q, want ghs_retry", cred.Value)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestCreateInstallationToken_DoesNotRetryAuthErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}, 3)

	if _, err := client.CreateInstallationToken(context.Background(), 1, "jwt"); err == nil {
		t.Fatal("expected error, got nil")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestCreateInstallationToken_RetriesRateLimited(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"token":"ghs_later","expires_at":%q}`, time.Now().Add(time.Hour).Format(time.RFC3339))
	}, 2)

	cred, err := client.CreateInstallationToken(context.Background(), 1, "jwt")
	if err != nil {
		t.Fatalf("CreateInstallationToken() unexpected error: %v", err)
	}
	if cred.Value != "ghs_later" {
		t.Errorf("Value = %q, want ghs_later", cred.Value)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestCreateInstallationToken_RetriesExhausted(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 1)

	_, err := client.CreateInstallationToken(context.Background(), 1, "jwt")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("error = %v, want APIError 503", err)
	}
}

func TestCreateInstallationToken_MalformedBody(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"token": 42`)
	}, 0)

	_, err := client.CreateInstallationToken(context.Background(), 1, "jwt")
	if !errors.Is(err, token.ErrMalformedResponse) {
		t.Errorf("error = %v, want ErrMalformedResponse", err)
	}
}

func TestCreateInstallationToken_Cancelled(t *testing.T) {
	block := make(chan struct{})
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}, 0)
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.CreateInstallationToken(ctx, 1, "jwt")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancelled request took %v to return", elapsed)
	}
}

func TestVerifyToken(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rate_limit" {
			t.Errorf("path = %s, want /rate_limit", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer ghs_ok" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"message":"Bad credentials"}`)
			return
		}
		fmt.Fprint(w, `{"resources":{"core":{"limit":5000,"remaining":4999,"reset":1767225600}}}`)
	}, 0)

	limit, err := client.VerifyToken(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "ghs_ok"}))
	if err != nil {
		t.Fatalf("VerifyToken() unexpected error: %v", err)
	}
	if limit.Limit != 5000 || limit.Remaining != 4999 {
		t.Errorf("RateLimit = %+v, want 5000/4999", limit)
	}
	if !limit.Reset.Equal(time.Unix(1767225600, 0)) {
		t.Errorf("Reset = %v", limit.Reset)
	}

	_, err = client.VerifyToken(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "ghs_bad"}))
	if !IsUnauthorized(err) {
		t.Errorf("VerifyToken() with bad token error = %v, want unauthorized", err)
	}
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}, nil); err == nil {
		t.Error("NewClient() expected error without base URL")
	}
}
