package model

import "time"

// AnswerExport is the top-level JSON structure for answer log export.
type AnswerExport struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Users       []UserStats      `json:"users"`
	Answers     []AnswerLogEntry `json:"answers"`
}

// UserStats summarizes one user's progress for export.
type UserStats struct {
	UserID     string     `json:"user_id"`
	Exam       Exam       `json:"exam,omitempty"`
	Subject    string     `json:"subject,omitempty"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
	TaskType   TaskType   `json:"task_type,omitempty"`
	Attempts   int        `json:"attempts"`
	Correct    int        `json:"correct"`
	Accuracy   float64    `json:"accuracy"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
