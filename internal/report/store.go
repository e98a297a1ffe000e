package report

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store persists reports in PostgreSQL.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a Store over db.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn, applies pending migrations and returns the handle.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	if err := Migrate(dsn); err != nil {
		return nil, err
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("report: connect db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	return db, nil
}

// Migrate applies the embedded schema migrations to dsn.
func Migrate(dsn string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("report: migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("report: migrate init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("report: migrate up: %w", err)
	}
	version, dirty, _ := m.Version()
	log.Printf("[report] schema at version %d (dirty=%v)", version, dirty)
	return nil
}

// RecentWindow is how far back File looks when counting reports against the
// reported connection.
const RecentWindow = 24 * time.Hour

// repeatThreshold is the recent report count at which File flags the
// reported connection in the log.
const repeatThreshold = 3

// File inserts r and logs how often its target has been reported within
// RecentWindow. It satisfies Reporter.
func (s *Store) File(ctx context.Context, r Report) error {
	stored, err := s.Create(ctx, r)
	if err != nil {
		return err
	}
	n, err := s.CountRecent(ctx, stored.ReportedID, RecentWindow)
	if err != nil {
		log.Printf("[report] count recent reported=%s: %v", stored.ReportedID, err)
		return nil
	}
	if n >= repeatThreshold {
		log.Printf("[report] repeat target reported=%s reports=%d window=%s", stored.ReportedID, n, RecentWindow)
	} else {
		log.Printf("[report] stored id=%d reported=%s reports=%d", stored.ID, stored.ReportedID, n)
	}
	return nil
}

// Create validates and inserts r, returning the stored row.
func (s *Store) Create(ctx context.Context, r Report) (Report, error) {
	if err := r.Validate(); err != nil {
		return Report{}, err
	}
	var out Report
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO reports (room_id, reporter_id, reported_id, reason)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, room_id, reporter_id, reported_id, reason, created_at`,
		r.RoomID, r.ReporterID, r.ReportedID, r.Reason).StructScan(&out)
	if err != nil {
		return Report{}, fmt.Errorf("report: insert: %w", err)
	}
	return out, nil
}

// CountRecent returns how many reports name reportedID within window.
func (s *Store) CountRecent(ctx context.Context, reportedID string, window time.Duration) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM reports
		 WHERE reported_id = $1 AND created_at >= NOW() - $2::interval`,
		reportedID, fmt.Sprintf("%d milliseconds", window.Milliseconds()))
	if err != nil {
		return 0, fmt.Errorf("report: count recent: %w", err)
	}
	return count, nil
}
