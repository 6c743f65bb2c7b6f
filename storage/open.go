package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Open returns the backend named by driver rooted at path. An empty path
// yields an in-memory database regardless of driver.
func Open(driver, path string) (Database, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return NewMemDB(), nil
	}
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "leveldb":
		return NewLevelDB(path)
	case "bolt":
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		return NewBoltDB(path)
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", driver)
	}
}
