package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

// mockSecretProvider is a test implementation of SecretProvider that returns
// pre-configured values.
type mockSecretProvider struct {
	values map[string]string
	err    error
	calls  int
}

func (m *mockSecretProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	result := make(map[string]string)
	for _, k := range keys {
		if v, ok := m.values[k]; ok {
			result[k] = v
		}
	}
	return result, nil
}

func TestFileSecretProviderReadsFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "database_url")
	if err := os.WriteFile(path, []byte("postgres://u:p@db/upkeep\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	result, err := NewFileSecretProvider().GetParametersBatch(context.Background(),
		[]string{path, filepath.Join(dir, "absent")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result[path]; got != "postgres://u:p@db/upkeep" {
		t.Errorf("value = %q, want trailing newline stripped", got)
	}
	if _, ok := result[filepath.Join(dir, "absent")]; ok {
		t.Error("missing file should be omitted from the result")
	}
}

func TestFileSecretProviderReadError(t *testing.T) {
	p := &FileSecretProvider{readFile: func(string) ([]byte, error) {
		return nil, fs.ErrPermission
	}}
	_, err := p.GetParametersBatch(context.Background(), []string{"/run/secrets/x"})
	if !errors.Is(err, fs.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
}
