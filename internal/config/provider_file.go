package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// FileSecretProvider resolves secrets from files, the way container
// orchestrators mount them (e.g. /run/secrets/database_url). Keys are file
// paths; a single trailing newline is stripped from each value.
type FileSecretProvider struct {
	readFile func(name string) ([]byte, error)
}

// NewFileSecretProvider creates a FileSecretProvider backed by os.ReadFile.
func NewFileSecretProvider() *FileSecretProvider {
	return &FileSecretProvider{readFile: os.ReadFile}
}

// GetParametersBatch reads every path in keys. Missing files are omitted
// from the result so the loader can report them by variable name; any other
// read failure aborts.
func (p *FileSecretProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, path := range keys {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled while reading secret files: %w", err)
		}
		b, err := p.readFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading secret file %s: %w", path, err)
		}
		v := strings.TrimSuffix(string(b), "\n")
		result[path] = strings.TrimSuffix(v, "\r")
	}
	return result, nil
}
