package emulator

import (
	"database/sql"
	_ "embed"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dop251/goja"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on documents(partition_key, seq)
const currentSchemaVersion = 1

// Defaults applied by Open.
const (
	DefaultPageSize          = 100
	DefaultChargePerDocument = 0.25
	DefaultProgramCacheSize  = 64
	maxPageSize              = 1000
)

// Emulator is an in-process document database.
//
// Thread-safety: all methods are safe for concurrent use. Each invocation
// gets its own JavaScript runtime; compiled programs are shared.
type Emulator struct {
	db *sql.DB

	pageSize          int
	maxBatches        int
	chargePerDocument float64
	cacheSize         int
	activityIDs       IDGenerator
	documentIDs       IDGenerator

	programs *lru.Cache[string, *goja.Program]
}

// Option configures an Emulator.
type Option func(*Emulator)

// WithPageSize sets the page size used when a program asks for the
// server default (pageSize -1).
func WithPageSize(n int) Option {
	return func(e *Emulator) {
		if n > 0 {
			e.pageSize = min(n, maxPageSize)
		}
	}
}

// WithMaxBatches sets the number of queries an invocation may run before
// queryDocuments refuses further work. Zero means unlimited; a negative
// value refuses every query.
func WithMaxBatches(n int) Option {
	return func(e *Emulator) {
		e.maxBatches = n
	}
}

// WithChargePerDocument sets the request charge per scanned document.
func WithChargePerDocument(c float64) Option {
	return func(e *Emulator) {
		if c >= 0 {
			e.chargePerDocument = c
		}
	}
}

// WithProgramCacheSize sets how many compiled programs are kept.
func WithProgramCacheSize(n int) Option {
	return func(e *Emulator) {
		if n > 0 {
			e.cacheSize = n
		}
	}
}

// WithActivityIDs replaces the activity id generator.
// Use NewFixedGenerator in tests for deterministic responses.
func WithActivityIDs(g IDGenerator) Option {
	return func(e *Emulator) {
		e.activityIDs = g
	}
}

// WithDocumentIDs replaces the generator used for documents without an id.
func WithDocumentIDs(g IDGenerator) Option {
	return func(e *Emulator) {
		e.documentIDs = g
	}
}

// Open creates or opens an emulator database at the given path.
// Applies required pragmas and migrations automatically.
func Open(path string, opts ...Option) (*Emulator, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	e := &Emulator{
		db:                db,
		pageSize:          DefaultPageSize,
		chargePerDocument: DefaultChargePerDocument,
		cacheSize:         DefaultProgramCacheSize,
		activityIDs:       UUIDv7Generator{},
		documentIDs:       UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.programs, err = lru.New[string, *goja.Program](e.cacheSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create program cache: %w", err)
	}

	return e, nil
}

// Close closes the database connection.
func (e *Emulator) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes the partition scan used by queryDocuments.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_documents_partition
		ON documents(partition_key, seq)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}
