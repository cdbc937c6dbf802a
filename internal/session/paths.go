package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.wagate.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wagate")
}

// Dir returns the identity-specific directory.
func Dir(identity string) string {
	return filepath.Join(BaseDir(), "sessions", identity)
}

// WorkBase returns the directory holding engine working directories
// (credential bundles) for an identity. The lifecycle manager allocates
// uniquely named subdirectories under it when needed.
func WorkBase(identity string) string {
	return filepath.Join(Dir(identity), "engine")
}

// MediaDir returns the directory downloaded media payloads are written to.
func MediaDir(identity string) string {
	return filepath.Join(Dir(identity), "media")
}

// LockPath returns the lock file path for an identity.
func LockPath(identity string) string {
	return filepath.Join(Dir(identity), "LOCK")
}

// LogDir returns the log directory for an identity.
func LogDir(identity string) string {
	return filepath.Join(Dir(identity), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(identity string) string {
	return filepath.Join(LogDir(identity), "wagated.log")
}

// DBPath returns the app-owned wagate.db path. Session records for every
// identity live in this one database, keyed by session name.
func DBPath() string {
	return filepath.Join(BaseDir(), "wagate.db")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the identity directory tree with proper permissions.
func EnsureDir(identity string) error {
	dirs := []string{
		Dir(identity),
		WorkBase(identity),
		MediaDir(identity),
		LogDir(identity),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
