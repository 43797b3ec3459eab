package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// EnsureChild returns the child record for a user, creating it on first
// contact and refreshing age and gender from the latest session otherwise.
func (s *Store) EnsureChild(ctx context.Context, userRef string, ageMonths int, gender string) (*Child, error) {
	if userRef == "" {
		return nil, errors.New("user reference is required")
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO children (user_ref, age_months, gender, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(user_ref) DO UPDATE SET
             age_months = excluded.age_months,
             gender = excluded.gender,
             updated_at = excluded.updated_at`,
		userRef,
		ageMonths,
		nullableString(gender),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert child: %w", err)
	}
	return s.ChildByUserRef(ctx, userRef)
}

// ChildByUserRef fetches the child record tied to a user.
func (s *Store) ChildByUserRef(ctx context.Context, userRef string) (*Child, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, user_ref, age_months, gender, baseline_done, created_at, updated_at
         FROM children WHERE user_ref = ?`,
		userRef,
	)
	child, err := scanChild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("child for %s: %w", userRef, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get child: %w", err)
	}
	return child, nil
}

// ChildByID fetches a child record by identifier.
func (s *Store) ChildByID(ctx context.Context, id int64) (*Child, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, user_ref, age_months, gender, baseline_done, created_at, updated_at
         FROM children WHERE id = ?`,
		id,
	)
	child, err := scanChild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("child %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get child: %w", err)
	}
	return child, nil
}

// ClaimBaseline flips the baseline flag for a child and reports whether this
// call was the one that flipped it. Exactly one caller wins even when
// milestone passes for concurrent sessions race.
func (s *Store) ClaimBaseline(ctx context.Context, childID int64) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE children SET baseline_done = 1, updated_at = ? WHERE id = ? AND baseline_done = 0`,
		time.Now().UTC().Format(time.RFC3339Nano),
		childID,
	)
	if err != nil {
		return false, fmt.Errorf("claim baseline: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanChild(scanner interface{ Scan(dest ...any) error }) (*Child, error) {
	var (
		child        Child
		gender       sql.NullString
		baselineDone int
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&child.ID,
		&child.UserRef,
		&child.AgeMonths,
		&gender,
		&baselineDone,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	child.Gender = gender.String
	child.BaselineDone = baselineDone != 0
	if created, err := parseTimeString(createdRaw); err == nil {
		child.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		child.UpdatedAt = updated
	}
	return &child, nil
}
