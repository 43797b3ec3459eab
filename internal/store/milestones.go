package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SeedMilestoneLibrary inserts or refreshes library milestones. Called on
// startup with the embedded catalog; existing child progress is untouched.
func (s *Store) SeedMilestoneLibrary(ctx context.Context, milestones []Milestone) error {
	if len(milestones) == 0 {
		return errors.New("milestone library is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin library tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(
		ctx,
		`INSERT INTO milestone_library (key, domain, title, description, min_age_months, max_age_months, threshold)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET
             domain = excluded.domain,
             title = excluded.title,
             description = excluded.description,
             min_age_months = excluded.min_age_months,
             max_age_months = excluded.max_age_months,
             threshold = excluded.threshold`,
	)
	if err != nil {
		return fmt.Errorf("prepare library upsert: %w", err)
	}
	defer stmt.Close()

	for _, m := range milestones {
		if m.Key == "" {
			return errors.New("milestone key is required")
		}
		if _, err := stmt.ExecContext(ctx, m.Key, m.Domain, m.Title, m.Description, m.MinAgeMonths, m.MaxAgeMonths, m.Threshold); err != nil {
			return fmt.Errorf("seed milestone %s: %w", m.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit library: %w", err)
	}
	return nil
}

// LibraryMilestones returns the full milestone catalog ordered by domain and
// age window.
func (s *Store) LibraryMilestones(ctx context.Context) ([]Milestone, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT key, domain, title, description, min_age_months, max_age_months, threshold
         FROM milestone_library ORDER BY domain, min_age_months, key`,
	)
	if err != nil {
		return nil, fmt.Errorf("query library: %w", err)
	}
	defer rows.Close()

	var milestones []Milestone
	for rows.Next() {
		var m Milestone
		if err := rows.Scan(&m.Key, &m.Domain, &m.Title, &m.Description, &m.MinAgeMonths, &m.MaxAgeMonths, &m.Threshold); err != nil {
			return nil, fmt.Errorf("scan milestone: %w", err)
		}
		milestones = append(milestones, m)
	}
	return milestones, rows.Err()
}

// ChildMilestones returns all progression rows for a child keyed by
// milestone key.
func (s *Store) ChildMilestones(ctx context.Context, childID int64) (map[string]ChildMilestone, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT child_id, milestone_key, state, evidence_count, first_observed_at, achieved_at, updated_at
         FROM child_milestones WHERE child_id = ?`,
		childID,
	)
	if err != nil {
		return nil, fmt.Errorf("query child milestones: %w", err)
	}
	defer rows.Close()

	progress := make(map[string]ChildMilestone)
	for rows.Next() {
		cm, err := scanChildMilestone(rows)
		if err != nil {
			return nil, err
		}
		progress[cm.MilestoneKey] = cm
	}
	return progress, rows.Err()
}

// RecordEvidence applies one observation of a milestone to a child's
// progression row inside a transaction. A new row starts emerging; an
// emerging row is promoted once its evidence count strictly exceeds the
// threshold; an achieved row only accumulates evidence, it never demotes.
// The returned flag reports whether this call performed the promotion.
func (s *Store) RecordEvidence(ctx context.Context, childID int64, milestoneKey string, threshold int) (ChildMilestone, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ChildMilestone{}, false, fmt.Errorf("begin evidence tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	stamp := now.Format(time.RFC3339Nano)

	row := tx.QueryRowContext(
		ctx,
		`SELECT child_id, milestone_key, state, evidence_count, first_observed_at, achieved_at, updated_at
         FROM child_milestones WHERE child_id = ? AND milestone_key = ?`,
		childID,
		milestoneKey,
	)
	cm, err := scanChildMilestone(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		cm = ChildMilestone{
			ChildID:         childID,
			MilestoneKey:    milestoneKey,
			State:           MilestoneEmerging,
			EvidenceCount:   1,
			FirstObservedAt: now,
			UpdatedAt:       now,
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO child_milestones (child_id, milestone_key, state, evidence_count, first_observed_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?)`,
			childID, milestoneKey, cm.State, cm.EvidenceCount, stamp, stamp,
		); err != nil {
			return ChildMilestone{}, false, fmt.Errorf("insert progression: %w", err)
		}
	case err != nil:
		return ChildMilestone{}, false, fmt.Errorf("get progression: %w", err)
	default:
		cm.EvidenceCount++
		cm.UpdatedAt = now
		promote := cm.State == MilestoneEmerging && cm.EvidenceCount > threshold
		if promote {
			cm.State = MilestoneAchieved
			cm.AchievedAt = &now
		}
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE child_milestones SET state = ?, evidence_count = ?, achieved_at = ?, updated_at = ?
             WHERE child_id = ? AND milestone_key = ?`,
			cm.State, cm.EvidenceCount, nullableTime(cm.AchievedAt), stamp, childID, milestoneKey,
		); err != nil {
			return ChildMilestone{}, false, fmt.Errorf("update progression: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return ChildMilestone{}, false, fmt.Errorf("commit evidence: %w", err)
		}
		return cm, promote, nil
	}

	if err := tx.Commit(); err != nil {
		return ChildMilestone{}, false, fmt.Errorf("commit evidence: %w", err)
	}
	return cm, false, nil
}

// GrantAchieved marks a milestone achieved outright, used for baseline credit
// on milestones whose age window the child has already outgrown. Existing
// achieved rows are left alone; an emerging row is promoted in place.
func (s *Store) GrantAchieved(ctx context.Context, childID int64, milestoneKey string) (ChildMilestone, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ChildMilestone{}, fmt.Errorf("begin grant tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	stamp := now.Format(time.RFC3339Nano)

	row := tx.QueryRowContext(
		ctx,
		`SELECT child_id, milestone_key, state, evidence_count, first_observed_at, achieved_at, updated_at
         FROM child_milestones WHERE child_id = ? AND milestone_key = ?`,
		childID,
		milestoneKey,
	)
	cm, err := scanChildMilestone(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		cm = ChildMilestone{
			ChildID:         childID,
			MilestoneKey:    milestoneKey,
			State:           MilestoneAchieved,
			EvidenceCount:   0,
			FirstObservedAt: now,
			AchievedAt:      &now,
			UpdatedAt:       now,
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO child_milestones (child_id, milestone_key, state, evidence_count, first_observed_at, achieved_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			childID, milestoneKey, cm.State, cm.EvidenceCount, stamp, stamp, stamp,
		); err != nil {
			return ChildMilestone{}, fmt.Errorf("insert grant: %w", err)
		}
	case err != nil:
		return ChildMilestone{}, fmt.Errorf("get progression: %w", err)
	default:
		if cm.State != MilestoneAchieved {
			cm.State = MilestoneAchieved
			cm.AchievedAt = &now
			cm.UpdatedAt = now
			if _, err := tx.ExecContext(
				ctx,
				`UPDATE child_milestones SET state = ?, achieved_at = ?, updated_at = ?
                 WHERE child_id = ? AND milestone_key = ?`,
				cm.State, stamp, stamp, childID, milestoneKey,
			); err != nil {
				return ChildMilestone{}, fmt.Errorf("update grant: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return ChildMilestone{}, fmt.Errorf("commit grant: %w", err)
	}
	return cm, nil
}

func scanChildMilestone(scanner interface{ Scan(dest ...any) error }) (ChildMilestone, error) {
	var (
		cm          ChildMilestone
		firstRaw    string
		achievedRaw sql.NullString
		updatedRaw  string
	)
	if err := scanner.Scan(
		&cm.ChildID,
		&cm.MilestoneKey,
		&cm.State,
		&cm.EvidenceCount,
		&firstRaw,
		&achievedRaw,
		&updatedRaw,
	); err != nil {
		return ChildMilestone{}, err
	}
	if first, err := parseTimeString(firstRaw); err == nil {
		cm.FirstObservedAt = first
	}
	if achievedRaw.Valid {
		if achieved, err := parseTimeString(achievedRaw.String); err == nil {
			cm.AchievedAt = &achieved
		}
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		cm.UpdatedAt = updated
	}
	return cm, nil
}
