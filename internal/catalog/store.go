// Package catalog implements C1, the repository façade over the
// relational store: movies, files, history, quality profiles, the
// reputation table, and list-sync provenance. Its repository methods
// expose neither SQL nor database cursors — every one returns typed
// structs or a classified error; only Store.DB hands out the raw
// connection, for packages that share it.
package catalog

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // pure-Go sqlite driver, matches teacher
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store wraps the database connection and exposes the catalog's
// sub-repositories.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger

	Movies     *MovieRepo
	Files      *FileRepo
	Profiles   *ProfileRepo
	History    *HistoryRepo
	Reputation *ReputationRepo
	ListSync   *ListSyncRepo
	Queue      *QueueItemRepo
	RssCache   *RssCacheRepo
}

// Open creates a new SQLite-backed Store at path, running migrations.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite only supports one writer; a single pooled connection avoids
	// SQLITE_BUSY under concurrent workers instead of retrying in a loop.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, logger: logger.With().Str("component", "catalog").Logger()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	s.Movies = &MovieRepo{db: db}
	s.Files = &FileRepo{db: db}
	s.Profiles = &ProfileRepo{db: db}
	s.History = &HistoryRepo{db: db}
	s.Reputation = &ReputationRepo{db: db}
	s.ListSync = &ListSyncRepo{db: db}
	s.Queue = &QueueItemRepo{db: db}
	s.RssCache = &RssCacheRepo{db: db}
	return s, nil
}

func (s *Store) migrate() error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// DB returns the underlying connection, for packages (queue, scheduler)
// that need it to share the same SQLite connection pool/transaction
// scope as the catalog.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// WithTx runs fn inside a single transaction at serializable isolation
// (SQLite's own level, which is read-committed-or-stronger —
// spec.md §6 requires at least read committed). Multi-entity writes that
// cross repositories (the import registration swap) use this.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error().Err(rbErr).Msg("rollback failed after transaction error")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
