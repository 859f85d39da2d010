package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/joho/godotenv"
)

// DotEnvFile is read from the project root before credentials are resolved.
const DotEnvFile = ".env"

// LoadDotEnv parses root/.env. A missing file yields an empty map. The
// process environment is not modified.
func LoadDotEnv(root string) (map[string]string, error) {
	path := filepath.Join(root, DotEnvFile)
	vars, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return vars, nil
}

// EnvLookup returns a getenv for ResolveAPIKey that prefers the process
// environment and falls back to dotenv values.
func EnvLookup(getenv func(string) string, dotenv map[string]string) func(string) string {
	return func(name string) string {
		if v := getenv(name); v != "" {
			return v
		}
		return dotenv[name]
	}
}
