// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads credentials from a directory of plain-text files.
// Each file is one secret: the filename is the key name and the trimmed
// contents are the value.
//
// Supported key files: anthropic-api-key.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	// AnthropicKeyFile is the secrets file holding the completion API key.
	AnthropicKeyFile = "anthropic-api-key"

	// AnthropicKeyEnv is the environment variable for the same key.
	AnthropicKeyEnv = "ANTHROPIC_API_KEY"
)

// Source names where a resolved credential came from.
type Source string

const (
	SourceConfig  Source = "config"
	SourceEnv     Source = "env"
	SourceFile    Source = "secrets-file"
	SourceMissing Source = "missing"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("could not read secret", "name", name, "error", err)
			continue
		}

		if value := strings.TrimSpace(string(data)); value != "" {
			secrets[name] = value
		}
	}
	return secrets, nil
}

// ResolveAPIKey picks the completion API key. An explicit value (config file,
// flag or prefixed env var) wins, then ANTHROPIC_API_KEY, then the
// anthropic-api-key file in dir. An empty key with SourceMissing is not an
// error here; the completion client rejects it.
func ResolveAPIKey(explicit, dir string) (string, Source, error) {
	if v := strings.TrimSpace(explicit); v != "" {
		return v, SourceConfig, nil
	}
	if v := strings.TrimSpace(os.Getenv(AnthropicKeyEnv)); v != "" {
		return v, SourceEnv, nil
	}
	loaded, err := Load(dir)
	if err != nil {
		return "", SourceMissing, err
	}
	if v, ok := loaded[AnthropicKeyFile]; ok {
		return v, SourceFile, nil
	}
	return "", SourceMissing, nil
}
