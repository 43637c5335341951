package configstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"mourne/internal/domain/jsoncfg"
)

// FileBackend stores the config document in a single JSON or TOML file,
// selected by extension.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend writing to path.
func NewFileBackend(path string) (*FileBackend, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("configstore: path is required")
	}
	switch codecFor(path) {
	case "json", "toml":
	default:
		return nil, fmt.Errorf("configstore: unsupported config extension %q", filepath.Ext(path))
	}
	return &FileBackend{path: path}, nil
}

func codecFor(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func (b *FileBackend) Read(ctx context.Context) (jsoncfg.ProviderDocument, bool, error) {
	var doc jsoncfg.ProviderDocument
	if err := ctx.Err(); err != nil {
		return doc, false, err
	}
	raw, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, false, nil
	}
	if err != nil {
		return doc, false, fmt.Errorf("configstore: read %s: %w", b.path, err)
	}
	switch codecFor(b.path) {
	case "toml":
		if _, err := toml.Decode(string(raw), &doc); err != nil {
			return doc, false, fmt.Errorf("configstore: decode toml: %w", err)
		}
	default:
		if err := json.Unmarshal(raw, &doc); err != nil {
			return doc, false, fmt.Errorf("configstore: decode json: %w", err)
		}
	}
	return doc, true, nil
}

// Write encodes the document to a temp file beside the target, syncs it and
// renames it over the previous file.
func (b *FileBackend) Write(ctx context.Context, doc jsoncfg.ProviderDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var buf bytes.Buffer
	switch codecFor(b.path) {
	case "toml":
		if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
			return fmt.Errorf("configstore: encode toml: %w", err)
		}
	default:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("configstore: encode json: %w", err)
		}
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("configstore: ensure directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.path)+".*")
	if err != nil {
		return fmt.Errorf("configstore: create temp: %w", err)
	}
	cleanup := func() { os.Remove(tmp.Name()) }
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("configstore: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("configstore: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("configstore: close temp: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		cleanup()
		return fmt.Errorf("configstore: chmod temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		cleanup()
		return fmt.Errorf("configstore: replace %s: %w", b.path, err)
	}
	return nil
}

var _ Backend = (*FileBackend)(nil)
