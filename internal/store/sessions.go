package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewSessionParams carries the caller-supplied fields of a new session.
type NewSessionParams struct {
	UserRef        string
	Mode           string
	ChildAgeMonths int
	ChildGender    string
	Concern        string
}

// NewSession inserts a pending session and returns the stored row.
func (s *Store) NewSession(ctx context.Context, params NewSessionParams) (*Session, error) {
	if params.UserRef == "" {
		return nil, errors.New("user reference is required")
	}
	mode := params.Mode
	if mode == "" {
		mode = "conversation"
	}
	id := uuid.NewString()
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO sessions (
            id, user_ref, status, mode, child_age_months, child_gender, concern,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		params.UserRef,
		StatusPending,
		mode,
		params.ChildAgeMonths,
		nullableString(params.ChildGender),
		nullableString(params.Concern),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s.GetSession(ctx, id)
}

// GetSession fetches a session by identifier.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// UpdateSession persists changes to an existing session.
func (s *Store) UpdateSession(ctx context.Context, session *Session) error {
	if session == nil {
		return errors.New("session is nil")
	}
	session.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE sessions
         SET user_ref = ?, child_id = ?, status = ?, mode = ?, audio_ref = ?,
             child_age_months = ?, child_gender = ?, concern = ?, transcript = ?,
             duration_seconds = ?, divergence_json = ?, tag_counts_json = ?,
             overall_score = ?, error_message = ?, retry_count = ?, last_retry_at = ?,
             permanent_failure = ?, updated_at = ?
         WHERE id = ?`,
		session.UserRef,
		nullableChildID(session.ChildID),
		session.Status,
		session.Mode,
		nullableString(session.AudioRef),
		session.ChildAgeMonths,
		nullableString(session.ChildGender),
		nullableString(session.Concern),
		nullableString(session.Transcript),
		session.DurationSeconds,
		nullableString(session.DivergenceJSON),
		nullableString(session.TagCountsJSON),
		nullableInt(session.OverallScore),
		nullableString(session.ErrorMessage),
		session.RetryCount,
		nullableTime(session.LastRetryAt),
		boolToInt(session.PermanentFailure),
		session.UpdatedAt.Format(time.RFC3339Nano),
		session.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("session %s: %w", session.ID, ErrNotFound)
	}
	return nil
}

// ClaimNextPending atomically moves the oldest pending session to processing
// and returns it. It returns nil when no pending work exists.
func (s *Store) ClaimNextPending(ctx context.Context) (*Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(
		ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE status = ? ORDER BY created_at LIMIT 1`,
		StatusPending,
	)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select pending session: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(
		ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusProcessing,
		now.Format(time.RFC3339Nano),
		session.ID,
		StatusPending,
	); err != nil {
		return nil, fmt.Errorf("claim session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}

	session.Status = StatusProcessing
	session.UpdatedAt = now
	return session, nil
}

// ClaimPending transitions a specific pending session to processing. The
// claimed flag is false when the session exists but is no longer pending,
// so a second caller cannot take ownership of an in-flight session.
func (s *Store) ClaimPending(ctx context.Context, id string) (*Session, bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		StatusProcessing,
		now.Format(time.RFC3339Nano),
		id,
		StatusPending,
	)
	if err != nil {
		return nil, false, fmt.Errorf("claim session %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("claim session %s: %w", id, err)
	}

	session, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return session, affected > 0, nil
}

// ListSessions returns sessions filtered by status set (or all sessions when
// no status is provided), newest first.
func (s *Store) ListSessions(ctx context.Context, statuses ...Status) ([]*Session, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + sessionColumns + ` FROM sessions`
	orderClause := ` ORDER BY created_at DESC`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// ResetStuckProcessing returns sessions stuck in processing back to pending.
// Called on daemon startup so work interrupted by a crash is retried.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE status = ?`,
		StatusPending,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck sessions: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of sessions grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM sessions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates session state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusPending:
			health.Pending += count
		case StatusProcessing:
			health.Processing += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

const sessionColumns = "id, user_ref, child_id, status, mode, audio_ref, child_age_months, child_gender, concern, transcript, duration_seconds, divergence_json, tag_counts_json, overall_score, error_message, retry_count, last_retry_at, permanent_failure, created_at, updated_at"

func scanSession(scanner interface{ Scan(dest ...any) error }) (*Session, error) {
	var (
		id            string
		userRef       string
		childID       sql.NullInt64
		statusStr     string
		mode          string
		audioRef      sql.NullString
		childAge      int
		childGender   sql.NullString
		concern       sql.NullString
		transcript    sql.NullString
		duration      float64
		divergence    sql.NullString
		tagCounts     sql.NullString
		overallScore  sql.NullInt64
		errorMessage  sql.NullString
		retryCount    int
		lastRetryRaw  sql.NullString
		permanentFail sql.NullInt64
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&userRef,
		&childID,
		&statusStr,
		&mode,
		&audioRef,
		&childAge,
		&childGender,
		&concern,
		&transcript,
		&duration,
		&divergence,
		&tagCounts,
		&overallScore,
		&errorMessage,
		&retryCount,
		&lastRetryRaw,
		&permanentFail,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	session := &Session{
		ID:              id,
		UserRef:         userRef,
		ChildID:         childID.Int64,
		Status:          Status(statusStr),
		Mode:            mode,
		AudioRef:        audioRef.String,
		ChildAgeMonths:  childAge,
		ChildGender:     childGender.String,
		Concern:         concern.String,
		Transcript:      transcript.String,
		DurationSeconds: duration,
		DivergenceJSON:  divergence.String,
		TagCountsJSON:   tagCounts.String,
		ErrorMessage:    errorMessage.String,
		RetryCount:      retryCount,
	}
	if overallScore.Valid {
		score := int(overallScore.Int64)
		session.OverallScore = &score
	}
	if permanentFail.Valid {
		session.PermanentFailure = permanentFail.Int64 != 0
	}
	if lastRetryRaw.Valid {
		if retryAt, err := parseTimeString(lastRetryRaw.String); err == nil {
			session.LastRetryAt = &retryAt
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		session.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		session.UpdatedAt = updated
	}
	return session, nil
}

func nullableChildID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
