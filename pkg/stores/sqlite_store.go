package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory journal.
const MemoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	// Every connection to :memory: opens a new database.
	if cfg.Path == MemoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Open creates, initializes and migrates a store.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.cfg.Path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	if s.cfg.Path != MemoryPath {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SaveFrame writes a frame and its phase timings. Saving a frame ID twice
// replaces the earlier record.
func (s *SQLiteStore) SaveFrame(ctx context.Context, frame *FrameRecord) error {
	if frame == nil || frame.ID == "" {
		return fmt.Errorf("frame ID is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM frames WHERE id = ?`, frame.ID); err != nil {
		return fmt.Errorf("failed to replace frame: %w", err)
	}

	query := `
		INSERT INTO frames (
			id, sequence, pipeline, task_count, started_at, completed_at,
			scene_state_version, buffers_committed, buffers_failed, commit_bytes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		frame.ID,
		int64(frame.Sequence),
		frame.Pipeline,
		frame.TaskCount,
		frame.StartedAt.UnixNano(),
		frame.CompletedAt.UnixNano(),
		int64(frame.SceneStateVersion),
		frame.BuffersCommitted,
		frame.BuffersFailed,
		frame.CommitBytes,
	)
	if err != nil {
		return fmt.Errorf("failed to save frame: %w", err)
	}

	for i, p := range frame.Phases {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO frame_phases (frame_id, position, phase, duration_ns) VALUES (?, ?, ?, ?)`,
			frame.ID, i, p.Phase, int64(p.Duration))
		if err != nil {
			return fmt.Errorf("failed to save phase %s: %w", p.Phase, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit frame: %w", err)
	}
	return nil
}

const frameColumns = `
	id, sequence, pipeline, task_count, started_at, completed_at,
	scene_state_version, buffers_committed, buffers_failed, commit_bytes
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFrame(row rowScanner) (*FrameRecord, error) {
	var (
		frame             FrameRecord
		sequence, version int64
		startedAt, doneAt int64
	)
	err := row.Scan(
		&frame.ID,
		&sequence,
		&frame.Pipeline,
		&frame.TaskCount,
		&startedAt,
		&doneAt,
		&version,
		&frame.BuffersCommitted,
		&frame.BuffersFailed,
		&frame.CommitBytes,
	)
	if err != nil {
		return nil, err
	}
	frame.Sequence = uint64(sequence)
	frame.SceneStateVersion = uint64(version)
	frame.StartedAt = time.Unix(0, startedAt)
	frame.CompletedAt = time.Unix(0, doneAt)
	return &frame, nil
}

// GetFrame retrieves a frame and its phase timings by ID
func (s *SQLiteStore) GetFrame(ctx context.Context, id string) (*FrameRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+frameColumns+` FROM frames WHERE id = ?`, id)
	frame, err := scanFrame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrFrameNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get frame: %w", err)
	}

	if frame.Phases, err = s.phases(ctx, id); err != nil {
		return nil, err
	}
	return frame, nil
}

// ListFrames lists the most recent frames first. A limit of zero or less
// lists every frame.
func (s *SQLiteStore) ListFrames(ctx context.Context, limit int) ([]*FrameRecord, error) {
	if limit <= 0 {
		limit = -1
	}

	query := `SELECT ` + frameColumns + ` FROM frames ORDER BY started_at DESC, sequence DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}
	defer rows.Close()

	frames := []*FrameRecord{}
	for rows.Next() {
		frame, err := scanFrame(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		frames = append(frames, frame)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating frames: %w", err)
	}
	rows.Close()

	for _, frame := range frames {
		if frame.Phases, err = s.phases(ctx, frame.ID); err != nil {
			return nil, err
		}
	}
	return frames, nil
}

func (s *SQLiteStore) phases(ctx context.Context, frameID string) ([]PhaseRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT phase, duration_ns FROM frame_phases WHERE frame_id = ? ORDER BY position`, frameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list phases: %w", err)
	}
	defer rows.Close()

	phases := []PhaseRecord{}
	for rows.Next() {
		var (
			p  PhaseRecord
			ns int64
		)
		if err := rows.Scan(&p.Phase, &ns); err != nil {
			return nil, fmt.Errorf("failed to scan phase: %w", err)
		}
		p.Duration = time.Duration(ns)
		phases = append(phases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating phases: %w", err)
	}
	return phases, nil
}

// SaveUsageError records a usage error. frameID may be empty when the
// error kept a frame from starting.
func (s *SQLiteStore) SaveUsageError(ctx context.Context, frameID, code, message string) error {
	var frame *string
	if frameID != "" {
		frame = &frameID
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_errors (frame_id, code, message, created_at) VALUES (?, ?, ?, ?)`,
		frame, code, message, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save usage error: %w", err)
	}
	return nil
}

// UsageErrors lists usage errors of a frame in the order they were saved.
// An empty frameID lists every usage error.
func (s *SQLiteStore) UsageErrors(ctx context.Context, frameID string) ([]*UsageErrorRecord, error) {
	query := `SELECT id, frame_id, code, message, created_at FROM usage_errors`
	args := []interface{}{}
	if frameID != "" {
		query += ` WHERE frame_id = ?`
		args = append(args, frameID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage errors: %w", err)
	}
	defer rows.Close()

	records := []*UsageErrorRecord{}
	for rows.Next() {
		var (
			rec       UsageErrorRecord
			frame     sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &frame, &rec.Code, &rec.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage error: %w", err)
		}
		rec.FrameID = frame.String
		rec.CreatedAt = time.Unix(0, createdAt)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage errors: %w", err)
	}
	return records, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

var _ Store = (*SQLiteStore)(nil)
