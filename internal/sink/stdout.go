// file: internal/sink/stdout.go

package sink

import (
	"context"
	"fmt"
	"io"

	"install-credentials/internal/token"
)

// StdoutSink prints the bare token followed by a newline
type StdoutSink struct {
	w io.Writer
}

func NewStdoutSink(w io.Writer) *StdoutSink {
	return &StdoutSink{w: w}
}

func (s *StdoutSink) Name() string {
	return "stdout"
}

func (s *StdoutSink) Write(ctx context.Context, cred token.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(s.w, cred.Value); err != nil {
		return fmt.Errorf("failed to write credential to stdout: %w", err)
	}
	return nil
}
