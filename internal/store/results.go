package store

import (
	"context"
	"fmt"
	"time"
)

// RecordResult appends a post-game result row for the stats collaborator.
func (s *Store) RecordResult(ctx context.Context, identity, mode string, won bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO results (identity, mode, won, created_at) VALUES (?,?,?,?)`,
		identity, mode, boolInt(won), formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}
