package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/exambot/internal/model"
)

// InsertQuestion stores a question and returns its id.
func (s *Store) InsertQuestion(ctx context.Context, q model.Question) (int64, error) {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(
		`INSERT INTO questions (exam, subject, difficulty, task_type, text, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		q.Exam, q.Subject, q.Difficulty, q.TaskType, q.Text, q.Source, q.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert question: %w", err)
	}
	return id, nil
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(ctx context.Context, id int64) (model.Question, error) {
	var q model.Question
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, exam, subject, difficulty, task_type, text, source, created_at FROM questions WHERE id = ?`), id,
	).Scan(&q.ID, &q.Exam, &q.Subject, &q.Difficulty, &q.TaskType, &q.Text, &q.Source, &q.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return q, ErrNotFound
	}
	return q, err
}

func filterClause(f model.QuestionFilter) (string, []any) {
	where := ` WHERE 1=1`
	var args []any
	add := func(col, val string) {
		if val != "" {
			where += ` AND ` + col + ` = ?`
			args = append(args, val)
		}
	}
	add("exam", string(f.Exam))
	add("subject", f.Subject)
	add("difficulty", string(f.Difficulty))
	add("task_type", string(f.TaskType))
	add("source", string(f.Source))
	return where, args
}

// ListQuestionIDs returns the ids of questions matching the filter.
// Empty filter fields match anything.
func (s *Store) ListQuestionIDs(ctx context.Context, f model.QuestionFilter) ([]int64, error) {
	where, args := filterClause(f)
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT id FROM questions`+where+` ORDER BY id`), args...)
	if err != nil {
		return nil, fmt.Errorf("list question ids: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// QuestionCount returns the number of questions matching the filter.
func (s *Store) QuestionCount(ctx context.Context, f model.QuestionFilter) (int, error) {
	where, args := filterClause(f)
	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM questions`+where), args...).Scan(&count)
	return count, err
}
