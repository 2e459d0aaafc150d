// file: internal/sink/file.go

package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"install-credentials/internal/logger"
	"install-credentials/internal/token"
)

const (
	fileMode = 0o600
	dirMode  = 0o700
)

// FileSink writes the credential to a path, replacing any previous content.
// The write goes through a temp file in the same directory and a rename, so
// readers never observe a partial token.
type FileSink struct {
	path   string
	format string
	host   string
	logger *logger.Logger
}

// NewFileSink creates a file sink. format is raw or git-credentials.
func NewFileSink(path, format, host string, log *logger.Logger) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("file sink requires a destination path")
	}
	if _, err := Render(format, host, token.Credential{}); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &FileSink{path: path, format: format, host: host, logger: log}, nil
}

func (s *FileSink) Name() string {
	return "file"
}

// Path returns the destination file
func (s *FileSink) Path() string {
	return s.path
}

func (s *FileSink) Write(ctx context.Context, cred token.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Render(s.format, s.host, cred)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credential: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync credential: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to move credential into place: %w", err)
	}

	s.logger.Debug("credential written", "path", s.path, "format", s.format)
	return nil
}
