// file: internal/sink/sink.go

// Package sink delivers a freshly minted credential to wherever the caller
// needs it: a file on disk, standard output or a NATS KV bucket.
package sink

import (
	"context"
	"fmt"
	"net/url"

	"install-credentials/config"
	"install-credentials/internal/token"
)

// Sink receives a credential once per install run
type Sink interface {
	Name() string
	Write(ctx context.Context, cred token.Credential) error
}

// Render formats the credential for a file-like destination.
// raw is the bare token, git-credentials is a single line understood by
// git's credential store helper.
func Render(format, host string, cred token.Credential) ([]byte, error) {
	switch format {
	case "", config.FormatRaw:
		return []byte(cred.Value), nil
	case config.FormatGitCredentials:
		if host == "" {
			return nil, fmt.Errorf("git-credentials format requires a host")
		}
		u := url.URL{
			Scheme: "https",
			User:   url.UserPassword("x-access-token", cred.Value),
			Host:   host,
		}
		return []byte(u.String() + "\n"), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}
