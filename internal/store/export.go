package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/exambot/internal/model"
)

// ExportAnswers builds an export of per-user statistics and the full answer log.
func (s *Store) ExportAnswers(ctx context.Context) (model.AnswerExport, error) {
	sessions, err := s.ListSessions(ctx)
	if err != nil {
		return model.AnswerExport{}, err
	}
	answers, err := s.ListAnswers(ctx, "")
	if err != nil {
		return model.AnswerExport{}, fmt.Errorf("export answers: %w", err)
	}

	users := make([]model.UserStats, 0, len(sessions))
	for _, sess := range sessions {
		users = append(users, model.UserStats{
			UserID:     sess.UserID,
			Exam:       sess.Exam,
			Subject:    sess.Subject,
			Difficulty: sess.Difficulty,
			TaskType:   sess.TaskType,
			Attempts:   sess.AttemptsCount,
			Correct:    sess.CorrectCount,
			Accuracy:   sess.Accuracy(),
			UpdatedAt:  sess.UpdatedAt,
		})
	}

	return model.AnswerExport{
		GeneratedAt: time.Now().UTC(),
		Users:       users,
		Answers:     answers,
	}, nil
}
