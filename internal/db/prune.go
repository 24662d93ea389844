package db

import (
	"context"
	"fmt"
	"time"
)

// RetentionPolicy controls session cleanup.
type RetentionPolicy struct {
	KeepLast int
	KeepDays int
}

// PruneResult summarizes a prune operation.
type PruneResult struct {
	Considered int
	Kept       int
	Deleted    int
	DeletedIDs []string
}

// PruneSessions deletes old sessions. Running sessions are always kept, and
// a policy with neither limit set is a no-op.
func (s *Store) PruneSessions(ctx context.Context, policy RetentionPolicy, dryRun bool) (PruneResult, error) {
	if policy.KeepLast <= 0 && policy.KeepDays <= 0 {
		return PruneResult{}, nil
	}
	cutoff := time.Time{}
	if policy.KeepDays > 0 {
		cutoff = s.now().Add(-time.Duration(policy.KeepDays) * 24 * time.Hour)
	}

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		return PruneResult{}, err
	}

	res := PruneResult{Considered: len(sessions)}
	for idx, sess := range sessions {
		keep := sess.Status == StatusRunning
		if !keep && policy.KeepLast > 0 && idx < policy.KeepLast {
			keep = true
		}
		if !keep && policy.KeepDays > 0 {
			if sess.CreatedAt.IsZero() || sess.CreatedAt.After(cutoff) {
				keep = true
			}
		}
		if keep {
			res.Kept++
			continue
		}
		res.DeletedIDs = append(res.DeletedIDs, sess.ID)
		if dryRun {
			res.Deleted++
			continue
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id=?`, sess.ID); err != nil {
			return res, fmt.Errorf("delete session %s: %w", sess.ID, err)
		}
		res.Deleted++
	}
	return res, nil
}
