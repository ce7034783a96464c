package secret

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider resolves secrets by reference.
//
// Implementations must be safe for concurrent use and must not log secret
// values.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
	Close() error
}

// FileProvider serves secrets stored one per file under Dir. The reference
// is a path relative to Dir; trailing newlines are trimmed.
type FileProvider struct {
	Dir string
}

// NewFileProvider creates a FileProvider rooted at dir.
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{Dir: dir}
}

// Name returns "file".
func (p *FileProvider) Name() string { return "file" }

// Resolve reads the secret file for ref. References escaping Dir are
// rejected.
func (p *FileProvider) Resolve(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !filepath.IsLocal(ref) {
		return "", fmt.Errorf("%w: %q is not a local path", ErrInvalidRef, ref)
	}
	b, err := os.ReadFile(filepath.Join(p.Dir, ref))
	if err != nil {
		return "", fmt.Errorf("secret: read %q: %w", ref, err)
	}
	return strings.TrimRight(string(b), "\r\n"), nil
}

// Close does nothing.
func (p *FileProvider) Close() error { return nil }

var _ Provider = (*FileProvider)(nil)
