package sqlite

import (
	"context"
	"fmt"

	"github.com/shreyank06/data-engineering-project/internal/domain"
)

// The source relations are append-only: these loaders exist for seeding a
// database from an upstream extract and ignore rows already present rather
// than overwriting them.

// InsertConversions appends conversions, skipping conv_ids already ingested.
func (s *Store) InsertConversions(ctx context.Context, conversions []domain.Conversion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin conversions transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO conversions (conv_id, user_id, conv_date, conv_time, revenue)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare conversions insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range conversions {
		if _, err := stmt.ExecContext(ctx, c.ConvID, c.UserID, c.ConvDate, c.ConvTime, c.Revenue); err != nil {
			return fmt.Errorf("insert conversion %s: %w", c.ConvID, err)
		}
	}
	return tx.Commit()
}

// InsertSessions appends sessions, skipping session_ids already ingested.
func (s *Store) InsertSessions(ctx context.Context, sessions []domain.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sessions transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO session_sources
		 (session_id, user_id, event_date, event_time, channel_name, holder_engagement, closer_engagement, impression_interaction)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare sessions insert: %w", err)
	}
	defer stmt.Close()

	for _, sess := range sessions {
		if _, err := stmt.ExecContext(ctx, sess.SessionID, sess.UserID, sess.EventDate, sess.EventTime,
			sess.ChannelName, sess.HolderEngagement, sess.CloserEngagement, sess.ImpressionInteraction); err != nil {
			return fmt.Errorf("insert session %s: %w", sess.SessionID, err)
		}
	}
	return tx.Commit()
}

// InsertCosts appends session costs, skipping session_ids already ingested.
func (s *Store) InsertCosts(ctx context.Context, costs []domain.SessionCost) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin costs transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO session_costs (session_id, cost) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare costs insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range costs {
		if _, err := stmt.ExecContext(ctx, c.SessionID, c.Cost); err != nil {
			return fmt.Errorf("insert cost for session %s: %w", c.SessionID, err)
		}
	}
	return tx.Commit()
}
