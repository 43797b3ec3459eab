package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ReplaceUtterances swaps the stored timeline of a session for the provided
// rows in one transaction. Either all rows land or none do, so a retried
// transcription never leaves a partial timeline behind.
func (s *Store) ReplaceUtterances(ctx context.Context, sessionID string, utterances []Utterance) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin utterance tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM utterances WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear utterances: %w", err)
	}

	stmt, err := tx.PrepareContext(
		ctx,
		`INSERT INTO utterances (
            session_id, seq, speaker, role, start_seconds, end_seconds,
            text, is_silence, feedback, behavior_code
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare utterance insert: %w", err)
	}
	defer stmt.Close()

	for _, u := range utterances {
		if _, err := stmt.ExecContext(
			ctx,
			sessionID,
			u.Seq,
			nullableString(u.Speaker),
			nullableString(u.Role),
			u.StartSeconds,
			u.EndSeconds,
			u.Text,
			boolToInt(u.IsSilence),
			nullableString(u.Feedback),
			nullableString(u.BehaviorCode),
		); err != nil {
			return fmt.Errorf("insert utterance %d: %w", u.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit utterances: %w", err)
	}
	return nil
}

// Utterances returns the stored timeline of a session ordered by sequence.
func (s *Store) Utterances(ctx context.Context, sessionID string) ([]Utterance, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, session_id, seq, speaker, role, start_seconds, end_seconds,
                text, is_silence, feedback, behavior_code
         FROM utterances WHERE session_id = ? ORDER BY seq`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query utterances: %w", err)
	}
	defer rows.Close()

	var utterances []Utterance
	for rows.Next() {
		u, err := scanUtterance(rows)
		if err != nil {
			return nil, err
		}
		utterances = append(utterances, u)
	}
	return utterances, rows.Err()
}

// AssignRoles writes speaker-label to role assignments across a session in one
// transaction. Every utterance carrying one of the mapped labels receives the
// mapped role; silence rows are left untouched.
func (s *Store) AssignRoles(ctx context.Context, sessionID string, roles map[string]string) error {
	if len(roles) == 0 {
		return errors.New("role map is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin role tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for speaker, role := range roles {
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE utterances SET role = ? WHERE session_id = ? AND speaker = ? AND is_silence = 0`,
			role,
			sessionID,
			speaker,
		); err != nil {
			return fmt.Errorf("assign role %q to %q: %w", role, speaker, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit roles: %w", err)
	}
	return nil
}

// TagUtterances writes behavior codes keyed by sequence number in one
// transaction. Re-running with the same map is idempotent.
func (s *Store) TagUtterances(ctx context.Context, sessionID string, codes map[int]string) error {
	if len(codes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tag tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(
		ctx,
		`UPDATE utterances SET behavior_code = ? WHERE session_id = ? AND seq = ?`,
	)
	if err != nil {
		return fmt.Errorf("prepare tag update: %w", err)
	}
	defer stmt.Close()

	for seq, code := range codes {
		res, err := stmt.ExecContext(ctx, code, sessionID, seq)
		if err != nil {
			return fmt.Errorf("tag utterance %d: %w", seq, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("utterance %s/%d: %w", sessionID, seq, ErrNotFound)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tags: %w", err)
	}
	return nil
}

func scanUtterance(scanner interface{ Scan(dest ...any) error }) (Utterance, error) {
	var (
		u            Utterance
		speaker      sql.NullString
		role         sql.NullString
		feedback     sql.NullString
		behaviorCode sql.NullString
		isSilence    int
	)
	if err := scanner.Scan(
		&u.ID,
		&u.SessionID,
		&u.Seq,
		&speaker,
		&role,
		&u.StartSeconds,
		&u.EndSeconds,
		&u.Text,
		&isSilence,
		&feedback,
		&behaviorCode,
	); err != nil {
		return Utterance{}, fmt.Errorf("scan utterance: %w", err)
	}
	u.Speaker = speaker.String
	u.Role = role.String
	u.Feedback = feedback.String
	u.BehaviorCode = behaviorCode.String
	u.IsSilence = isSilence != 0
	return u, nil
}
