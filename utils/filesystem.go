package utils

import (
	"os"
)

// PathExists returns true if the path exists on disk
func PathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// EnsureFolder creates a folder, and any missing parents, if it doesn't
// exist already
func EnsureFolder(path string) error {
	exists, err := PathExists(path)
	if err != nil || exists {
		return err
	}
	return os.MkdirAll(path, 0o755)
}
