package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	dotConfig      = ".config"
	appName        = "rally"
	credentialName = "credential.json"
)

// Dir is ~/.config/rally, or $RALLY_CONFIG_DIR when set.
func Dir() (string, error) {
	if dir := os.Getenv("RALLY_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, dotConfig, appName), nil
}

func EnsureDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", appName, err)
	}
	return dir, nil
}

func Credential() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, credentialName), nil
}
