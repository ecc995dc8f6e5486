package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

const appDir = "vinroute"

// xdgDir resolves an XDG base directory, falling back to $HOME/<homeRel>.
func xdgDir(env, homeRel, last string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appDir)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, homeRel, appDir)
	}
	return last
}

func defaultDataDir() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"), appDir+"-data")
}

func configFilePath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config", appDir), "config.json")
}

// fileBackend keeps config in a flat JSON object keyed by dotted key, e.g.
// {"server.port": 4100, "generation.model": "anthropic/claude-sonnet-4"}.
// Numbers are kept as json.Number so integers round-trip exactly.
type fileBackend struct {
	path string

	mu     sync.Mutex
	values map[string]any
}

func newPlatformBackend() ConfigBackend {
	return newFileBackend(configFilePath())
}

// newFileBackend reads path if it exists. An unreadable or malformed file is
// reported on stderr and treated as empty so the service still starts on
// defaults.
func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, values: make(map[string]any)}
	if err := b.read(); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] config file %s: %v. Using default values.\n", path, err)
	}
	return b
}

func (b *fileBackend) read() error {
	raw, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(&b.values)
}

// write replaces the file atomically so a concurrent reader never sees a
// half-written config.
func (b *fileBackend) write() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(b.values, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".config-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), b.path)
}

func (b *fileBackend) lookup(key string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.values[key]
	return v, ok
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok := b.lookup(key)
	if !ok {
		return "", false, nil
	}
	if s, isStr := v.(string); isStr {
		return s, true, nil
	}
	return fmt.Sprint(v), true, nil
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.lookup(key)
	if !ok {
		return 0, false, nil
	}
	var text string
	switch val := v.(type) {
	case json.Number:
		text = val.String()
	case string:
		text = val
	default:
		return 0, true, fmt.Errorf("%s: expected an integer, got %T", key, v)
	}
	i, err := strconv.Atoi(text)
	if err != nil {
		return 0, true, fmt.Errorf("%s: %q is not an integer", key, text)
	}
	return i, true, nil
}

func (b *fileBackend) set(key string, val any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if val == nil {
		delete(b.values, key)
	} else {
		b.values[key] = val
	}
	return b.write()
}

func (b *fileBackend) SetString(key, val string) error { return b.set(key, val) }

func (b *fileBackend) SetInt(key string, val int) error {
	return b.set(key, json.Number(strconv.Itoa(val)))
}

func (b *fileBackend) Delete(key string) error { return b.set(key, nil) }
