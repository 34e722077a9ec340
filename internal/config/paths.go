package config

import (
	"os"
	"path/filepath"
)

func GetUserConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, ".chatsync"), nil
}

// SessionFile is where the file backend keeps persisted session keys.
func SessionFile(configDir string) string {
	return filepath.Join(configDir, "session.yaml")
}

// DefaultConfigFile returns ~/.chatsync/config.yaml if it exists, else "".
func DefaultConfigFile() string {
	dir, err := GetUserConfigDir()
	if err != nil {
		return ""
	}
	p := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

func EnsureConfigDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}
