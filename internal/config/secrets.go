package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// secretStore looks up secret config values by key.
type secretStore interface {
	Get(key string) (string, error)
}

// fileSecrets reads a flat JSON object of secret keys kept outside the
// regular config file, readable only by the owner.
type fileSecrets struct {
	path string
}

func secretsFilePath() string {
	return filepath.Join(defaultDataDir(), "secrets.json")
}

func (f fileSecrets) Get(key string) (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("secrets not available: %w", err)
	}
	var secrets map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return "", fmt.Errorf("parsing secrets file: %w", err)
	}
	val, ok := secrets[key]
	if !ok {
		return "", fmt.Errorf("secret %q not found", key)
	}
	return val, nil
}
