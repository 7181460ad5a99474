package store

import (
	"fmt"
	"path/filepath"
	"strings"
)

// KeywordBackend represents the keyword index backend type.
type KeywordBackend string

const (
	// KeywordBackendBleve uses Bleve v2 (default).
	KeywordBackendBleve KeywordBackend = "bleve"

	// KeywordBackendSQLite uses SQLite FTS5.
	KeywordBackendSQLite KeywordBackend = "sqlite"
)

// ParseKeywordBackend normalizes a backend name. Empty means bleve.
func ParseKeywordBackend(name string) (KeywordBackend, error) {
	switch b := KeywordBackend(strings.ToLower(strings.TrimSpace(name))); b {
	case "":
		return KeywordBackendBleve, nil
	case KeywordBackendBleve, KeywordBackendSQLite:
		return b, nil
	default:
		return "", fmt.Errorf("unknown keyword backend: %s (valid options: bleve, sqlite)", name)
	}
}

// KeywordIndexPath returns the index location inside dir for the backend.
// An empty dir yields an empty (in-memory) path.
func KeywordIndexPath(dir string, backend KeywordBackend) string {
	if dir == "" {
		return ""
	}
	if backend == KeywordBackendSQLite {
		return filepath.Join(dir, "keyword.db")
	}
	return filepath.Join(dir, "keyword.bleve")
}

// NewKeywordIndex creates a keyword index of the given backend under dir.
func NewKeywordIndex(backend KeywordBackend, dir string, caseSensitive bool) (KeywordIndex, error) {
	cfg := KeywordConfig{
		Path:          KeywordIndexPath(dir, backend),
		CaseSensitive: caseSensitive,
	}
	switch backend {
	case KeywordBackendBleve, "":
		return NewBleveIndex(cfg)
	case KeywordBackendSQLite:
		return NewSQLiteIndex(cfg)
	default:
		return nil, fmt.Errorf("unknown keyword backend: %s (valid options: bleve, sqlite)", backend)
	}
}
