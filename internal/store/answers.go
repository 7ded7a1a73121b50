package store

import (
	"context"
	"fmt"

	"github.com/pavelanni/exambot/internal/model"
)

// ListAnswers returns the answer log in insertion order.
// An empty userID returns every user's entries.
func (s *Store) ListAnswers(ctx context.Context, userID string) ([]model.AnswerLogEntry, error) {
	query := `SELECT id, user_id, question_id, source, question_text, submitted_text, is_correct, explanation, created_at
		FROM answer_log`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()
	var entries []model.AnswerLogEntry
	for rows.Next() {
		var e model.AnswerLogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.QuestionID, &e.Source, &e.QuestionText,
			&e.SubmittedText, &e.IsCorrect, &e.Explanation, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
