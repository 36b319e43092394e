package store

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/namelens/chatgate/internal/config"
)

const memoryDSN = ":memory:"

// target is a resolved connection string. file is the on-disk database path
// for embedded stores, empty for memory and remote ones.
type target struct {
	dsn  string
	file string
}

func (t target) local() bool { return t.file != "" }

// resolveTarget turns store config into a libsql DSN. A URL (Turso or any
// libsql server) wins over a path; a bare path becomes a file: DSN.
func resolveTarget(cfg config.StoreConfig) (target, error) {
	if raw := strings.TrimSpace(cfg.URL); raw != "" {
		dsn, err := withAuthToken(raw, cfg.AuthToken)
		return target{dsn: dsn}, err
	}

	path := strings.TrimSpace(cfg.Path)
	switch {
	case path == "":
		return target{}, errors.New("store path or url is required")
	case path == memoryDSN:
		return target{dsn: memoryDSN}, nil
	case strings.HasPrefix(path, "libsql:"):
		return target{dsn: path}, nil
	case strings.HasPrefix(path, "file:"):
		parsed, err := url.Parse(path)
		if err != nil {
			return target{}, fmt.Errorf("invalid store path: %w", err)
		}
		file := parsed.Path
		if file == "" {
			file = parsed.Opaque
		}
		return target{dsn: path, file: strings.TrimPrefix(file, "//")}, nil
	default:
		clean := filepath.Clean(path)
		return target{dsn: "file:" + clean, file: clean}, nil
	}
}

func withAuthToken(dsn, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return dsn, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}
	query := parsed.Query()
	if query.Get("authToken") == "" {
		query.Set("authToken", token)
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}

// prepareDir creates the database directory. The store holds API keys, so
// the directory is private to the user.
func prepareDir(file string) error {
	dir := filepath.Dir(filepath.Clean(file))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
