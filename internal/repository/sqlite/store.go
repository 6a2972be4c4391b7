package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/shreyank06/data-engineering-project/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements repository.EventStore on SQLite.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens the SQLite database at path. The schema is not touched here;
// call Migrate before first use.
func Open(path string, log *zap.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	log.Info("SQLite store opened", zap.String("path", path))

	return &Store{db: db, log: log}, nil
}

// Migrate brings the schema to the current version using the embedded
// migrations. Older divergent schema variants are a one-time migration
// concern, not runtime polymorphism.
func (s *Store) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("init migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	s.log.Info("Database schema is up to date")
	return nil
}

// ReadConversions returns all rows of the conversions relation.
func (s *Store) ReadConversions(ctx context.Context) ([]domain.Conversion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conv_id, user_id, conv_date, conv_time, revenue FROM conversions`)
	if err != nil {
		return nil, fmt.Errorf("query conversions: %w", err)
	}
	defer rows.Close()

	var conversions []domain.Conversion
	for rows.Next() {
		var c domain.Conversion
		if err := rows.Scan(&c.ConvID, &c.UserID, &c.ConvDate, &c.ConvTime, &c.Revenue); err != nil {
			return nil, fmt.Errorf("scan conversion row: %w", err)
		}
		conversions = append(conversions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversions: %w", err)
	}
	return conversions, nil
}

// ReadSessions returns all rows of the session_sources relation.
func (s *Store) ReadSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, user_id, event_date, event_time, channel_name,
		        holder_engagement, closer_engagement, impression_interaction
		 FROM session_sources`)
	if err != nil {
		return nil, fmt.Errorf("query session_sources: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var sess domain.Session
		if err := rows.Scan(&sess.SessionID, &sess.UserID, &sess.EventDate, &sess.EventTime,
			&sess.ChannelName, &sess.HolderEngagement, &sess.CloserEngagement, &sess.ImpressionInteraction); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session_sources: %w", err)
	}
	return sessions, nil
}

// ReadCosts returns all rows of the session_costs relation.
func (s *Store) ReadCosts(ctx context.Context) ([]domain.SessionCost, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id, cost FROM session_costs`)
	if err != nil {
		return nil, fmt.Errorf("query session_costs: %w", err)
	}
	defer rows.Close()

	var costs []domain.SessionCost
	for rows.Next() {
		var c domain.SessionCost
		if err := rows.Scan(&c.SessionID, &c.Cost); err != nil {
			return nil, fmt.Errorf("scan cost row: %w", err)
		}
		costs = append(costs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session_costs: %w", err)
	}
	return costs, nil
}

// ReadCredit returns all rows of the attribution_customer_journey relation.
func (s *Store) ReadCredit(ctx context.Context) ([]domain.AttributionCredit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conv_id, session_id, ihc FROM attribution_customer_journey`)
	if err != nil {
		return nil, fmt.Errorf("query attribution_customer_journey: %w", err)
	}
	defer rows.Close()

	var credits []domain.AttributionCredit
	for rows.Next() {
		var c domain.AttributionCredit
		if err := rows.Scan(&c.ConvID, &c.SessionID, &c.IHC); err != nil {
			return nil, fmt.Errorf("scan credit row: %w", err)
		}
		credits = append(credits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attribution_customer_journey: %w", err)
	}
	return credits, nil
}

// UpsertCredit persists credit rows with replace-on-conflict semantics keyed
// by (conv_id, session_id), in one transaction.
func (s *Store) UpsertCredit(ctx context.Context, credits []domain.AttributionCredit) (int, error) {
	if len(credits) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin credit transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO attribution_customer_journey (conv_id, session_id, ihc)
		 VALUES (?, ?, ?)
		 ON CONFLICT (conv_id, session_id) DO UPDATE SET ihc = excluded.ihc`)
	if err != nil {
		return 0, fmt.Errorf("prepare credit upsert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, c := range credits {
		if _, err := stmt.ExecContext(ctx, c.ConvID, c.SessionID, c.IHC); err != nil {
			return 0, fmt.Errorf("upsert credit for conv %s session %s: %w", c.ConvID, c.SessionID, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit credit transaction: %w", err)
	}
	return written, nil
}

// CreditSums returns the per-conversion sum of persisted credit.
func (s *Store) CreditSums(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT conv_id, SUM(ihc) FROM attribution_customer_journey GROUP BY conv_id`)
	if err != nil {
		return nil, fmt.Errorf("query credit sums: %w", err)
	}
	defer rows.Close()

	sums := make(map[string]float64)
	for rows.Next() {
		var convID string
		var sum float64
		if err := rows.Scan(&convID, &sum); err != nil {
			return nil, fmt.Errorf("scan credit sum row: %w", err)
		}
		sums[convID] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credit sums: %w", err)
	}
	return sums, nil
}

// ReplaceChannelReport clears the channel_reporting relation (fully, or only
// the requested window) and repopulates it in one transaction, so a partial
// rebuild failure never leaves stale and fresh rows mixed.
func (s *Store) ReplaceChannelReport(ctx context.Context, reportRows []domain.ChannelReportRow, window *domain.DateWindow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin report transaction: %w", err)
	}
	defer tx.Rollback()

	if window != nil {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM channel_reporting WHERE date >= ? AND date <= ?`,
			window.Start, window.End)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM channel_reporting`)
	}
	if err != nil {
		return fmt.Errorf("clear channel_reporting: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO channel_reporting (channel_name, date, cost, ihc, ihc_revenue)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare report insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range reportRows {
		if _, err := stmt.ExecContext(ctx, row.ChannelName, row.Date, row.Cost, row.IHC, row.IHCRevenue); err != nil {
			return fmt.Errorf("insert report row for %s/%s: %w", row.ChannelName, row.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit report transaction: %w", err)
	}
	return nil
}

// ReadChannelReport returns channel_reporting rows ordered by channel and
// date, optionally restricted to an inclusive window.
func (s *Store) ReadChannelReport(ctx context.Context, window *domain.DateWindow) ([]domain.ChannelReportRow, error) {
	query := `SELECT channel_name, date, cost, ihc, ihc_revenue FROM channel_reporting`
	var args []any
	if window != nil {
		query += ` WHERE date >= ? AND date <= ?`
		args = append(args, window.Start, window.End)
	}
	query += ` ORDER BY channel_name, date`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query channel_reporting: %w", err)
	}
	defer rows.Close()

	var report []domain.ChannelReportRow
	for rows.Next() {
		var r domain.ChannelReportRow
		if err := rows.Scan(&r.ChannelName, &r.Date, &r.Cost, &r.IHC, &r.IHCRevenue); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		report = append(report, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channel_reporting: %w", err)
	}
	return report, nil
}

// Ping checks if the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
