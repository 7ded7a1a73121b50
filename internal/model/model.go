package model

import (
	"context"
	"time"
)

// Exam identifies one of the two exam tracks.
type Exam string

const (
	// ExamA is the lower-stakes exam track.
	ExamA Exam = "EXAM_A"
	// ExamB is the higher-stakes exam track.
	ExamB Exam = "EXAM_B"
)

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyBasic    Difficulty = "BASIC"
	DifficultyMedium   Difficulty = "MEDIUM"
	DifficultyAdvanced Difficulty = "ADVANCED"
)

// TaskType is the kind of task the user wants to practice.
type TaskType string

const (
	TaskTheory         TaskType = "THEORY"
	TaskPractice       TaskType = "PRACTICE"
	TaskTest           TaskType = "TEST"
	TaskExtendedAnswer TaskType = "EXTENDED_ANSWER"
)

// Source records where a question came from.
type Source string

const (
	SourceLocal Source = "LOCAL"
	SourceAI    Source = "AI"
)

// Question represents a stored question, either from the local bank or generated.
type Question struct {
	ID         int64      `json:"id"`
	Exam       Exam       `json:"exam"`
	Subject    string     `json:"subject"`
	Difficulty Difficulty `json:"difficulty"`
	TaskType   TaskType   `json:"task_type"`
	Text       string     `json:"text"`
	Source     Source     `json:"source"`
	CreatedAt  time.Time  `json:"created_at"`
}

// QuestionFilter selects questions for lookup. Empty fields match anything.
type QuestionFilter struct {
	Exam       Exam
	Subject    string
	Difficulty Difficulty
	TaskType   TaskType
	Source     Source
}

// QuestionImport is used for loading the local question bank from JSON.
type QuestionImport struct {
	Exam       Exam       `json:"exam"`
	Subject    string     `json:"subject"`
	Difficulty Difficulty `json:"difficulty"`
	TaskType   TaskType   `json:"task_type"`
	Text       string     `json:"text"`
}

// AnswerLogEntry is one evaluated submission. Entries are append-only.
type AnswerLogEntry struct {
	ID            int64     `json:"id"`
	UserID        string    `json:"user_id"`
	QuestionID    *int64    `json:"question_id,omitempty"`
	Source        Source    `json:"source"`
	QuestionText  string    `json:"question_text"`
	SubmittedText string    `json:"submitted_text"`
	IsCorrect     bool      `json:"is_correct"`
	Explanation   string    `json:"explanation"`
	CreatedAt     time.Time `json:"created_at"`
}

// ButtonStyle hints how a platform should color a menu button.
type ButtonStyle string

const (
	StylePrimary   ButtonStyle = "primary"
	StyleSecondary ButtonStyle = "secondary"
	StylePositive  ButtonStyle = "positive"
	StyleNegative  ButtonStyle = "negative"
)

// Button is a clickable menu entry. Clicking it sends Label back as text.
type Button struct {
	Label string
	Style ButtonStyle
}

// Menu is an ordered list of button rows.
type Menu struct {
	Rows [][]Button
}

// Labels returns every button label in display order.
func (m *Menu) Labels() []string {
	if m == nil {
		return nil
	}
	var out []string
	for _, row := range m.Rows {
		for _, b := range row {
			out = append(out, b.Label)
		}
	}
	return out
}

// Reply is one outbound message.
type Reply struct {
	Text string
	Menu *Menu
}

// EventKind distinguishes inbound webhook events.
type EventKind string

const (
	EventVerification EventKind = "verification"
	EventMessage      EventKind = "message"
)

// InboundEvent is the transport-independent shape of an inbound webhook call.
type InboundEvent struct {
	Kind   EventKind
	UserID string
	Text   string
	Secret string
}

// BotConfig holds runtime bot parameters set via CLI flags.
type BotConfig struct {
	Lang             string // UI language (en, ru)
	ConfirmationCode string // returned verbatim on VK confirmation
	Secret           string // VK callback secret; empty disables the check
	PromptVariant    string // judge prompt variant (strict, standard, lenient)
}

type requestIDCtxKey struct{}

// ContextWithRequestID stores a correlation id for log lines of one event.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey{}, id)
}

// RequestIDFromContext returns the correlation id, or empty string if not set.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDCtxKey{}).(string)
	return id
}
