package config

import (
	"os"
	"path/filepath"
)

// DirName is the per-project directory holding config and traces.
const DirName = ".vtrace"

// ConfigPath returns the config file location for a project root.
func ConfigPath(root string) string {
	return filepath.Join(root, DirName, "config.yaml")
}

func GetProjectDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return FindProjectDir(wd), nil
}

// FindProjectDir walks up from start to the nearest directory holding a
// .vtrace or .git entry. Without one, start itself is the project root.
func FindProjectDir(start string) string {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, DirName)); err == nil {
			return dir
		}

		// Check for .git directory (project root)
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}
