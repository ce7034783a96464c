package secret

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileProvider_Resolve(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "redis"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "redis", "password"), []byte("hunter2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	p := NewFileProvider(dir)

	got, err := p.Resolve(context.Background(), "redis/password")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != "hunter2" {
		t.Errorf("Resolve() = %q, want hunter2", got)
	}

	if _, err := p.Resolve(context.Background(), "../etc/passwd"); !errors.Is(err, ErrInvalidRef) {
		t.Errorf("escaping ref error = %v, want ErrInvalidRef", err)
	}
	if _, err := p.Resolve(context.Background(), "missing"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v, want os.ErrNotExist", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Resolve(ctx, "redis/password"); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Resolve() error = %v", err)
	}
}
