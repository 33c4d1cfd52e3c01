package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// FileCredentialState reads the credential pools from a local JSON file.
type FileCredentialState struct {
	FilePath string
}

func NewFileCredentialState(filePath string) *FileCredentialState {
	return &FileCredentialState{FilePath: filePath}
}

// Load reads the file. A file readable by group or others still loads, with a warning.
func (c *FileCredentialState) Load(ctx context.Context) ([]byte, error) {
	if info, err := os.Stat(c.FilePath); err == nil && info.Mode().Perm()&0o077 != 0 {
		slog.Warn("STORAGE: Credentials file is readable by other users", "path", c.FilePath, "mode", info.Mode().Perm().String())
	}
	return readFile(ctx, c.FilePath, "credentials")
}

// FileReferenceState reads reference table overrides from a local JSON file.
type FileReferenceState struct {
	FilePath string
}

func NewFileReferenceState(filePath string) *FileReferenceState {
	return &FileReferenceState{FilePath: filePath}
}

func (r *FileReferenceState) Load(ctx context.Context) ([]byte, error) {
	return readFile(ctx, r.FilePath, "references")
}

func readFile(ctx context.Context, path, what string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s file: %w", what, err)
	}
	return b, nil
}
