package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/exambot/internal/model"
)

const sessionColumns = `user_id, exam, subject, difficulty, task_type,
	current_question, current_question_id, current_source, waiting_for_answer,
	attempts_count, correct_count, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (model.UserSession, error) {
	var u model.UserSession
	err := row.Scan(&u.UserID, &u.Exam, &u.Subject, &u.Difficulty, &u.TaskType,
		&u.CurrentQuestion, &u.CurrentQuestionID, &u.CurrentSource, &u.WaitingForAnswer,
		&u.AttemptsCount, &u.CorrectCount, &u.Version, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// GetOrCreateSession returns the user's session, creating an empty one on first contact.
// Concurrent first contacts create exactly one row.
func (s *Store) GetOrCreateSession(ctx context.Context, userID string) (model.UserSession, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO user_sessions (user_id, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`),
		userID, now, now,
	)
	if err != nil {
		return model.UserSession{}, fmt.Errorf("create session %s: %w", userID, err)
	}
	return s.GetSession(ctx, userID)
}

// GetSession returns the user's session or ErrNotFound.
func (s *Store) GetSession(ctx context.Context, userID string) (model.UserSession, error) {
	u, err := scanSession(s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+sessionColumns+` FROM user_sessions WHERE user_id = ?`), userID))
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	if err != nil {
		return u, fmt.Errorf("get session %s: %w", userID, err)
	}
	return u, nil
}

// SaveTurn writes sess if nobody else saved it since it was loaded, and appends
// answer (when not nil) to the answer log in the same transaction.
// On success sess.Version and sess.UpdatedAt reflect the stored row.
func (s *Store) SaveTurn(ctx context.Context, sess *model.UserSession, answer *model.AnswerLogEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, s.rebind(
		`UPDATE user_sessions SET
			exam = ?, subject = ?, difficulty = ?, task_type = ?,
			current_question = ?, current_question_id = ?, current_source = ?, waiting_for_answer = ?,
			attempts_count = ?, correct_count = ?, version = version + 1, updated_at = ?
		 WHERE user_id = ? AND version = ?`),
		sess.Exam, sess.Subject, sess.Difficulty, sess.TaskType,
		sess.CurrentQuestion, sess.CurrentQuestionID, sess.CurrentSource, sess.WaitingForAnswer,
		sess.AttemptsCount, sess.CorrectCount, now,
		sess.UserID, sess.Version,
	)
	if err != nil {
		return fmt.Errorf("update session %s: %w", sess.UserID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("save session %s at version %d: %w", sess.UserID, sess.Version, ErrVersionConflict)
	}

	if answer != nil {
		answer.UserID = sess.UserID
		answer.CreatedAt = now
		if err := tx.QueryRowContext(ctx, s.rebind(
			`INSERT INTO answer_log (user_id, question_id, source, question_text, submitted_text, is_correct, explanation, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
			answer.UserID, answer.QuestionID, answer.Source, answer.QuestionText,
			answer.SubmittedText, answer.IsCorrect, answer.Explanation, answer.CreatedAt,
		).Scan(&answer.ID); err != nil {
			return fmt.Errorf("append answer log: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	sess.Version++
	sess.UpdatedAt = now
	return nil
}

// ClearSession drops the user's selections and pending question. Counters are kept.
func (s *Store) ClearSession(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE user_sessions SET
			exam = '', subject = '', difficulty = '', task_type = '',
			current_question = '', current_question_id = NULL, current_source = '',
			waiting_for_answer = ?, version = version + 1, updated_at = ?
		 WHERE user_id = ?`),
		false, time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("clear session %s: %w", userID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSessions returns every session ordered by user id.
func (s *Store) ListSessions(ctx context.Context) ([]model.UserSession, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM user_sessions ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var sessions []model.UserSession
	for rows.Next() {
		u, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, u)
	}
	return sessions, rows.Err()
}
