// Package datadir knows the on-disk layout of account databases: one subdirectory per account
// below a data root, recognized by the binlog file TDLib keeps in it.
package datadir

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

const (
	// ProductionMarker is present in a database directory used with the production environment.
	ProductionMarker = "td.binlog"
	// TestMarker is present in a database directory used with the test environment.
	TestMarker = "td_test.binlog"
)

// ErrNotDirectory is returned when the data root exists but is not a directory.
var ErrNotDirectory = errors.New("data root is not a directory")

// DatabaseInfo identifies the persisted state of one account.
type DatabaseInfo struct {
	DirectoryBaseName string `json:"directory_base_name"`
	UseTestDC         bool   `json:"use_test_dc"`
}

// Layout resolves paths below the data root.
type Layout struct {
	Root string
}

// DatabaseDir returns the directory of the given database.
func (l Layout) DatabaseDir(info DatabaseInfo) string {
	return filepath.Join(l.Root, info.DirectoryBaseName)
}

// RemoveDatabase deletes the directory of the given database with everything in it.
func (l Layout) RemoveDatabase(info DatabaseInfo) error {
	if info.DirectoryBaseName == "" {
		return fmt.Errorf("remove database: empty directory name")
	}
	dir := l.DatabaseDir(info)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove %s: %w", dir, err)
	}
	return nil
}

// StateKind tells whether sessions were found in the data root.
type StateKind int

const (
	// Empty means there are no sessions at all, e.g. on first start.
	Empty StateKind = iota
	// HasSessions means at least one database directory was found.
	HasSessions
)

// State is the outcome of Analyze.
type State struct {
	Kind StateKind
	// Databases lists the discovered databases in directory order. Set for HasSessions.
	Databases []DatabaseInfo
	// RecentlyUsed is the persisted order of recently used sessions, restricted to
	// the discovered databases. Set for HasSessions.
	RecentlyUsed []string
}

// RecentlyUsedLoader reads the persisted recently used order.
type RecentlyUsedLoader interface {
	RecentlyUsedSessions(ctx context.Context) ([]string, error)
}

// Analyze inspects the data root. A missing root is created and reported as Empty.
// Errors creating or listing the root are returned; unreadable entries are skipped.
// A failing loader is logged and yields an empty recently used order.
func Analyze(ctx context.Context, root string, loader RecentlyUsedLoader, logger *zerolog.Logger) (State, error) {
	fi, err := os.Stat(root)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return State{}, fmt.Errorf("stat %s: %w", root, err)
		}
		if err := os.MkdirAll(root, 0o700); err != nil {
			return State{}, fmt.Errorf("create %s: %w", root, err)
		}
		logger.Info().Str("path", root).Msg("created data directory")
		return State{Kind: Empty}, nil
	}
	if !fi.IsDir() {
		return State{}, fmt.Errorf("%s: %w", root, ErrNotDirectory)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return State{}, fmt.Errorf("read %s: %w", root, err)
	}

	var databases []DatabaseInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		useTestDC, ok := detectMarker(filepath.Join(root, entry.Name()))
		if !ok {
			continue
		}
		databases = append(databases, DatabaseInfo{
			DirectoryBaseName: entry.Name(),
			UseTestDC:         useTestDC,
		})
	}

	if len(databases) == 0 {
		return State{Kind: Empty}, nil
	}

	var recentlyUsed []string
	if loader != nil {
		recentlyUsed, err = loader.RecentlyUsedSessions(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to load recently used sessions")
			recentlyUsed = nil
		}
	}

	return State{
		Kind:         HasSessions,
		Databases:    databases,
		RecentlyUsed: Prune(recentlyUsed, databases),
	}, nil
}

// detectMarker reports whether dir holds a database and whether it uses the test environment.
func detectMarker(dir string) (useTestDC, ok bool) {
	if isFile(filepath.Join(dir, ProductionMarker)) {
		return false, true
	}
	if isFile(filepath.Join(dir, TestMarker)) {
		return true, true
	}
	return false, false
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// Prune drops names without a matching database, keeping the order of the rest.
// Duplicates are dropped as well.
func Prune(names []string, databases []DatabaseInfo) []string {
	known := make(map[string]struct{}, len(databases))
	for _, db := range databases {
		known[db.DirectoryBaseName] = struct{}{}
	}

	pruned := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := known[name]; !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		pruned = append(pruned, name)
	}
	return pruned
}
