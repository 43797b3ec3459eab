package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveProfiling records the developmental profile snapshot for a session.
// Keyed by session: a retried profiling pass replaces its earlier row instead
// of duplicating it.
func (s *Store) SaveProfiling(ctx context.Context, profiling *Profiling) error {
	if profiling == nil {
		return errors.New("profiling is nil")
	}
	if profiling.ChildID == 0 || profiling.SessionID == "" {
		return errors.New("profiling requires child and session identifiers")
	}
	profiling.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO child_profilings (
            child_id, session_id, age_months, domains_json, coaching_json,
            overall_score, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(session_id) DO UPDATE SET
            child_id = excluded.child_id,
            age_months = excluded.age_months,
            domains_json = excluded.domains_json,
            coaching_json = excluded.coaching_json,
            overall_score = excluded.overall_score,
            created_at = excluded.created_at`,
		profiling.ChildID,
		profiling.SessionID,
		profiling.AgeMonths,
		profiling.DomainsJSON,
		profiling.CoachingJSON,
		profiling.OverallScore,
		profiling.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert profiling: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT id FROM child_profilings WHERE session_id = ?`, profiling.SessionID)
	if err := row.Scan(&profiling.ID); err != nil {
		return fmt.Errorf("read profiling id: %w", err)
	}
	return nil
}

// LatestProfiling returns the most recent profile snapshot for a child, or
// ErrNotFound when none has been generated yet.
func (s *Store) LatestProfiling(ctx context.Context, childID int64) (*Profiling, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, child_id, session_id, age_months, domains_json, coaching_json,
                overall_score, created_at
         FROM child_profilings WHERE child_id = ? ORDER BY id DESC LIMIT 1`,
		childID,
	)
	profiling, err := scanProfiling(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profiling for child %d: %w", childID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get profiling: %w", err)
	}
	return profiling, nil
}

// ProfilingBySession returns the profile snapshot generated for a session, or
// ErrNotFound when profiling did not complete.
func (s *Store) ProfilingBySession(ctx context.Context, sessionID string) (*Profiling, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, child_id, session_id, age_months, domains_json, coaching_json,
                overall_score, created_at
         FROM child_profilings WHERE session_id = ? ORDER BY id DESC LIMIT 1`,
		sessionID,
	)
	profiling, err := scanProfiling(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profiling for session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get profiling: %w", err)
	}
	return profiling, nil
}

func scanProfiling(scanner interface{ Scan(dest ...any) error }) (*Profiling, error) {
	var (
		profiling  Profiling
		createdRaw string
	)
	if err := scanner.Scan(
		&profiling.ID,
		&profiling.ChildID,
		&profiling.SessionID,
		&profiling.AgeMonths,
		&profiling.DomainsJSON,
		&profiling.CoachingJSON,
		&profiling.OverallScore,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		profiling.CreatedAt = created
	}
	return &profiling, nil
}
