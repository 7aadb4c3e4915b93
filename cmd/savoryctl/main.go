// Command savoryctl runs maintenance jobs against the savory database:
// dataset import, ingredient cleanup and account setup.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/dukerupert/savory/internal/config"
	"github.com/dukerupert/savory/internal/database"
	"github.com/dukerupert/savory/internal/logging"
	"github.com/dukerupert/savory/internal/search"
	"github.com/dukerupert/savory/internal/snapshot"
)

type command struct {
	summary string
	run     func(ctx context.Context, app *app, args []string) error
}

var commands = map[string]command{
	"import":            {"load recipes from a .csv or .xlsx file", runImport},
	"merge-ingredients": {"fold near-duplicate ingredient names together", runMerge},
	"fix-encoding":      {"decode %-escaped ingredient names", runFixEncoding},
	"capitalize":        {"title-case every ingredient name", runCapitalize},
	"clean-incomplete":  {"delete recipes lacking ingredients, steps or images", runCleanIncomplete},
	"flush":             {"delete all recipe data, keeping user accounts", runFlush},
	"create-user":       {"create a user account", runCreateUser},
	"snapshot":          {"copy the database to the snapshot directory", runSnapshot},
}

// app holds what every command shares.
type app struct {
	cfg      *config.Config
	db       *sql.DB
	logger   *slog.Logger
	snapshot *snapshot.Manager
	stdin    io.Reader
	stdout   io.Writer
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "savoryctl:", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: savoryctl [--env file] [--snapshot-dir dir] <command> [flags]")
	fmt.Fprintln(w, "\ncommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-18s %s\n", name, commands[name].summary)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("savoryctl", flag.ContinueOnError)
	envFile := global.String("env", ".env", "env file to load before reading SAVORY_* variables")
	snapshotDir := global.String("snapshot-dir", "", "take a snapshot here before destructive commands")
	global.Usage = func() { usage(global.Output()) }
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		usage(os.Stderr)
		return errors.New("no command given")
	}
	name := global.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		usage(os.Stderr)
		return fmt.Errorf("unknown command %q", name)
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if *snapshotDir != "" {
		cfg.Snapshot.Dir = *snapshotDir
	}
	logger := logging.Setup(cfg.LogLevel)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{
		cfg:      cfg,
		db:       db,
		logger:   logger.With("command", name),
		snapshot: newSnapshotManager(cfg, db, logger),
		stdin:    os.Stdin,
		stdout:   os.Stdout,
	}
	return cmd.run(ctx, a, global.Args()[1:])
}

func newSnapshotManager(cfg *config.Config, db *sql.DB, logger *slog.Logger) *snapshot.Manager {
	s3cfg := snapshot.S3Config{
		Endpoint:  cfg.Snapshot.S3.Endpoint,
		Bucket:    cfg.Snapshot.S3.Bucket,
		Region:    cfg.Snapshot.S3.Region,
		Prefix:    cfg.Snapshot.S3.Prefix,
		AccessKey: cfg.Snapshot.S3.AccessKey,
		SecretKey: cfg.Snapshot.S3.SecretKey,
	}
	var uploader snapshot.Uploader
	if s3cfg.Configured() {
		uploader = snapshot.NewS3Uploader(s3cfg)
	}
	return snapshot.NewManager(snapshot.Config{
		Dir:        cfg.Snapshot.Dir,
		Keep:       cfg.Snapshot.Keep,
		Passphrase: cfg.Snapshot.Passphrase,
		S3:         s3cfg,
	}, db, uploader, logger)
}

// beforeDestructive snapshots the database when a snapshot directory is set.
func (a *app) beforeDestructive(ctx context.Context, reason string) error {
	if !a.snapshot.Enabled() {
		return nil
	}
	res, err := a.snapshot.Take(ctx, reason)
	if err != nil {
		return fmt.Errorf("snapshot before %s: %w", reason, err)
	}
	fmt.Fprintf(a.stdout, "snapshot written to %s (%d bytes)\n", res.Path, res.Size)
	return nil
}

// invalidateSearches drops every cached search after data changes. Only the
// Redis backend is shared with the server; the in-process cache expires on
// its own TTL.
func (a *app) invalidateSearches(ctx context.Context) {
	if a.cfg.Cache.Backend != config.CacheRedis {
		a.logger.Info("search cache is per-process; cached results expire within the cache TTL", "ttl", a.cfg.Cache.TTL)
		return
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	defer rdb.Close()
	engine := search.NewEngine(nil, search.NewRedisCache(rdb), a.cfg.Cache.TTL, a.logger)
	if err := engine.InvalidateAll(ctx); err != nil {
		a.logger.Warn("invalidate search cache failed", "error", err)
		return
	}
	a.logger.Info("search cache invalidated")
}
