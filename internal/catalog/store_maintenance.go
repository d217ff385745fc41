package catalog

import (
	"context"
	"fmt"
	"time"
)

// ResetStuckProcessing fails jobs left in running by a previous process.
// Run at daemon startup: nothing owns that work anymore, and clearing the
// jobs releases the exclusivity guard. Tracks stay in processing so the
// sweeper can resubmit their orphaned queue entries.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	const message = "interrupted by daemon restart"

	now := timestamp(time.Now())
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE separation_jobs SET status = ?, error_message = ?, completed_at = ?, updated_at = ?
         WHERE status = ?`,
		JobFailed, message, now, now, JobRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("reset running jobs: %w", err)
	}
	return res.RowsAffected()
}
