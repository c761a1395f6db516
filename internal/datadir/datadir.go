// Package datadir resolves the docquery data directory and the files that
// live inside it.
package datadir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default data directory name under $HOME.
	DefaultDirName = ".docquery"

	// EnvVar is the environment variable that overrides the data directory.
	EnvVar = "DOCQUERY_DATA_DIR"

	// DatabaseFile is the sqlite file name inside DatabaseDir.
	DatabaseFile = "docquery.db"

	// ConfigFile is the default config file name inside the root.
	ConfigFile = "config.json"

	databaseSubdir = "data"
	indexSubdir    = "indexes"
	backupSubdir   = "backups"
)

// DataDir is the single source of truth for data-directory paths.
// It does not touch the filesystem until EnsureDirs is called.
type DataDir struct {
	root string
}

// New returns a DataDir rooted at the resolved data directory.
//
// Resolution priority:
//  1. DOCQUERY_DATA_DIR environment variable
//  2. configValue argument (the config data_dir field)
//  3. ~/.docquery/
func New(configValue string) (*DataDir, error) {
	root, err := resolveRoot(configValue)
	if err != nil {
		return nil, err
	}
	return &DataDir{root: root}, nil
}

// Root returns the base data directory path.
func (d *DataDir) Root() string { return d.root }

// DatabaseDir returns {root}/data/.
func (d *DataDir) DatabaseDir() string { return filepath.Join(d.root, databaseSubdir) }

// DatabasePath returns {root}/data/docquery.db.
func (d *DataDir) DatabasePath() string { return filepath.Join(d.DatabaseDir(), DatabaseFile) }

// IndexDir returns {root}/indexes/, the directory index backend's home.
func (d *DataDir) IndexDir() string { return filepath.Join(d.root, indexSubdir) }

// BackupDir returns {root}/backups/.
func (d *DataDir) BackupDir() string { return filepath.Join(d.root, backupSubdir) }

// ConfigPath returns {root}/config.json.
func (d *DataDir) ConfigPath() string { return filepath.Join(d.root, ConfigFile) }

// FilePath returns the full path to a file directly inside the root directory.
func (d *DataDir) FilePath(filename string) string {
	return filepath.Join(d.root, filename)
}

func (d *DataDir) subdirectories() []string {
	return []string{
		d.DatabaseDir(),
		d.IndexDir(),
		d.BackupDir(),
	}
}

// EnsureDirs creates the root and all subdirectories with 0700 permissions.
func (d *DataDir) EnsureDirs() error {
	dirs := append([]string{d.root}, d.subdirectories()...)
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Resolve returns the data directory path, creating it with 0700 permissions
// if it doesn't already exist.
func Resolve(configValue string) (string, error) {
	root, err := resolveRoot(configValue)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(root, 0700); err != nil {
		return "", fmt.Errorf("failed to create data directory %s: %w", root, err)
	}
	return root, nil
}

func resolveRoot(configValue string) (string, error) {
	dir := os.Getenv(EnvVar)
	if dir == "" {
		dir = configValue
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, DefaultDirName)
	}
	return dir, nil
}
