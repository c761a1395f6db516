package datadir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	// EnvFileEnvVar allows overriding the .env file path entirely.
	EnvFileEnvVar = "DOCQUERY_ENV_FILE"

	// AppEnvVar selects the environment-specific file .env.<APP_ENV>.
	AppEnvVar = "APP_ENV"

	// DefaultAppEnv is used when APP_ENV is unset.
	DefaultAppEnv = "dev"
)

// LoadEnv loads .env files from standard locations in priority order.
// Later files do NOT override values set by earlier files (first-write-wins),
// and existing environment variables are never overridden.
//
// Default search order:
//  1. DOCQUERY_ENV_FILE (if set, only that file is loaded)
//  2. {datadir}/.env.<APP_ENV>, then {datadir}/.env
//  3. the same two files in the current working directory
//
// Extra directories may be supplied via dirs; they are tried last.
func LoadEnv(dataRoot string, dirs ...string) error {
	for _, p := range findEnvPaths(dataRoot, dirs...) {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		// godotenv.Load never overrides variables that are already set,
		// which also gives first-write-wins across files.
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// FindEnvFiles returns all .env file paths that would be loaded, in order.
// Files that don't exist on disk are excluded.
func FindEnvFiles(dataRoot string, dirs ...string) []string {
	var found []string
	for _, p := range findEnvPaths(dataRoot, dirs...) {
		if _, err := os.Stat(p); err == nil {
			found = append(found, p)
		}
	}
	return found
}

func findEnvPaths(dataRoot string, dirs ...string) []string {
	if override := os.Getenv(EnvFileEnvVar); override != "" {
		return []string{override}
	}

	appEnv := os.Getenv(AppEnvVar)
	if appEnv == "" {
		appEnv = DefaultAppEnv
	}
	names := []string{".env." + appEnv, ".env"}

	var roots []string
	if dataRoot != "" {
		roots = append(roots, dataRoot)
	}
	if cwd, err := os.Getwd(); err == nil {
		roots = append(roots, cwd)
	}
	roots = append(roots, dirs...)

	var paths []string
	for _, root := range roots {
		if root == "" {
			continue
		}
		for _, name := range names {
			paths = append(paths, filepath.Join(root, name))
		}
	}
	return dedupPaths(paths)
}

// dedupPaths removes duplicate paths (after cleaning) while preserving order.
func dedupPaths(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	var out []string
	for _, p := range paths {
		clean := filepath.Clean(p)
		if seen[clean] {
			continue
		}
		seen[clean] = true
		out = append(out, p)
	}
	return out
}
