// Package snapshot copies the live database to a file before destructive
// maintenance, optionally sealing it with a passphrase and shipping it to
// S3-compatible storage.
package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	filePrefix = "savory-"
	fileSuffix = ".db"
	sealedExt  = ".enc"
)

// Config controls where snapshots go. An empty Dir disables snapshots.
type Config struct {
	Dir        string
	Keep       int
	Passphrase string
	S3         S3Config
}

// Result describes one snapshot.
type Result struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Sealed    bool      `json:"sealed"`
	ObjectKey string    `json:"object_key,omitempty"`
	Pruned    []string  `json:"pruned,omitempty"`
	TakenAt   time.Time `json:"taken_at"`
}

type Manager struct {
	cfg      Config
	db       *sql.DB
	uploader Uploader
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager returns a manager for db. uploader may be nil.
func NewManager(cfg Config, db *sql.DB, uploader Uploader, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		db:       db,
		uploader: uploader,
		logger:   logger.With("component", "snapshot"),
		now:      time.Now,
	}
}

func (m *Manager) Enabled() bool {
	return m.cfg.Dir != ""
}

// Take writes a consistent copy of the database with VACUUM INTO. reason is
// recorded in the file name.
func (m *Manager) Take(ctx context.Context, reason string) (*Result, error) {
	if !m.Enabled() {
		return nil, fmt.Errorf("snapshot directory not configured")
	}
	if err := os.MkdirAll(m.cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	taken := m.now().UTC()
	name := filePrefix + taken.Format("20060102T150405.000Z")
	if reason = sanitize(reason); reason != "" {
		name += "-" + reason
	}
	path := filepath.Join(m.cfg.Dir, name+fileSuffix)

	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return nil, fmt.Errorf("vacuum into %s: %w", path, err)
	}
	res := &Result{Path: path, TakenAt: taken}

	if m.cfg.Passphrase != "" {
		sealed := path + sealedExt
		if err := SealFile(path, sealed, m.cfg.Passphrase); err != nil {
			os.Remove(sealed)
			return nil, err
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("remove plaintext snapshot: %w", err)
		}
		res.Path, res.Sealed = sealed, true
	}

	info, err := os.Stat(res.Path)
	if err != nil {
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}
	res.Size = info.Size()

	if m.uploader != nil {
		key, err := m.uploader.Upload(ctx, res.Path)
		if err != nil {
			return nil, err
		}
		res.ObjectKey = key
	}

	if m.cfg.Keep > 0 {
		pruned, err := Prune(m.cfg.Dir, m.cfg.Keep)
		if err != nil {
			m.logger.Warn("prune snapshots failed", "dir", m.cfg.Dir, "error", err)
		}
		res.Pruned = pruned
	}

	m.logger.Info("snapshot taken", "path", res.Path, "bytes", res.Size, "sealed", res.Sealed, "object_key", res.ObjectKey)
	return res, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ' || r == '_':
			return '-'
		}
		return -1
	}, strings.TrimSpace(s))
}

// List returns snapshot files in dir, oldest first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasPrefix(n, filePrefix) {
			continue
		}
		if strings.HasSuffix(n, fileSuffix) || strings.HasSuffix(n, fileSuffix+sealedExt) {
			names = append(names, n)
		}
	}
	// Names start with a sortable UTC timestamp.
	sort.Strings(names)
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(dir, n)
	}
	return paths, nil
}

// Prune deletes all but the newest keep snapshots and returns the removed
// paths.
func Prune(dir string, keep int) ([]string, error) {
	paths, err := List(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) <= keep {
		return nil, nil
	}
	var removed []string
	for _, p := range paths[:len(paths)-keep] {
		if err := os.Remove(p); err != nil {
			return removed, fmt.Errorf("remove %s: %w", p, err)
		}
		removed = append(removed, p)
	}
	return removed, nil
}
