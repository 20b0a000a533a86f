// Package dotdir resolves the .parley/ directory that holds config.toml,
// credentials.toml and the default SQLite database.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the name of the parley state directory.
const DirName = ".parley"

// Manager resolves the state directory.
type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path of the state directory, creating it when
// missing. Precedence:
//  1. overrideDir when non-empty
//  2. ./.parley/ when it already exists
//  3. ~/.parley/
func (m *Manager) Target(overrideDir string) (string, error) {
	dir := overrideDir

	if dir == "" {
		local, ok := m.localDir()
		if ok {
			dir = local
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("getting home directory: %w", err)
			}
			dir = filepath.Join(home, DirName)
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating parley directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// Path joins name onto the resolved state directory.
func (m *Manager) Path(overrideDir, name string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func (m *Manager) localDir() (string, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false
	}

	dir := filepath.Join(cwd, DirName)
	info, err := os.Stat(dir)
	return dir, err == nil && info.IsDir()
}
