package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// UserSession is the persisted per-user conversation state.
// Empty strings stand for unset fields.
type UserSession struct {
	UserID            string
	Exam              Exam
	Subject           string
	Difficulty        Difficulty
	TaskType          TaskType
	CurrentQuestion   string
	CurrentQuestionID *int64
	CurrentSource     Source
	WaitingForAnswer  bool
	AttemptsCount     int
	CorrectCount      int
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SelectExam sets the exam and clears everything downstream.
func (s *UserSession) SelectExam(e Exam) {
	s.Exam = e
	s.Subject = ""
	s.Difficulty = ""
	s.TaskType = ""
	s.ClearQuestion()
}

// SelectSubject sets the subject and clears everything downstream.
func (s *UserSession) SelectSubject(subject string) {
	s.Subject = subject
	s.Difficulty = ""
	s.TaskType = ""
	s.ClearQuestion()
}

// SelectDifficulty sets the difficulty and clears everything downstream.
func (s *UserSession) SelectDifficulty(d Difficulty) {
	s.Difficulty = d
	s.TaskType = ""
	s.ClearQuestion()
}

// SelectTaskType sets the task type and drops any pending question.
func (s *UserSession) SelectTaskType(t TaskType) {
	s.TaskType = t
	s.ClearQuestion()
}

// ResetExam clears the whole selection chain.
func (s *UserSession) ResetExam() { s.SelectExam("") }

// ResetSubject clears the subject and everything after it.
func (s *UserSession) ResetSubject() { s.SelectSubject("") }

// ResetDifficulty clears the difficulty and everything after it.
func (s *UserSession) ResetDifficulty() { s.SelectDifficulty("") }

// PoseQuestion marks q as the question awaiting an answer.
func (s *UserSession) PoseQuestion(q Question) {
	s.CurrentQuestion = q.Text
	s.CurrentQuestionID = nil
	if q.ID != 0 {
		id := q.ID
		s.CurrentQuestionID = &id
	}
	s.CurrentSource = q.Source
	s.WaitingForAnswer = q.Text != ""
}

// ClearQuestion drops the pending question.
func (s *UserSession) ClearQuestion() {
	s.CurrentQuestion = ""
	s.CurrentQuestionID = nil
	s.CurrentSource = ""
	s.WaitingForAnswer = false
}

// RecordAttempt counts one evaluated answer and closes the pending question.
func (s *UserSession) RecordAttempt(correct bool) {
	s.AttemptsCount++
	if correct {
		s.CorrectCount++
	}
	s.ClearQuestion()
}

// Accuracy returns the percentage of correct answers rounded to one decimal.
func (s UserSession) Accuracy() float64 {
	if s.AttemptsCount == 0 {
		return 0
	}
	pct := float64(s.CorrectCount) / float64(s.AttemptsCount) * 100
	return math.Round(pct*10) / 10
}

// Complete reports whether every selection needed to ask a question is set.
func (s UserSession) Complete() bool {
	return s.Exam != "" && s.Subject != "" && s.Difficulty != "" && s.TaskType != ""
}

// Selection returns the current choices.
func (s UserSession) Selection() Selection {
	return Selection{Exam: s.Exam, Subject: s.Subject, Difficulty: s.Difficulty, TaskType: s.TaskType}
}

// Selection is the tuple a question is requested for.
type Selection struct {
	Exam       Exam
	Subject    string
	Difficulty Difficulty
	TaskType   TaskType
}

var (
	ErrBrokenChain     = errors.New("selection prerequisite chain broken")
	ErrWaitingMismatch = errors.New("waiting_for_answer does not match current question")
	ErrCounters        = errors.New("correct count exceeds attempts")
)

// Validate checks the structural invariants of the session.
// Subject membership in the exam's list is checked by the catalog.
func (s UserSession) Validate() error {
	if s.TaskType != "" && s.Difficulty == "" {
		return fmt.Errorf("%w: task type without difficulty", ErrBrokenChain)
	}
	if s.Difficulty != "" && s.Subject == "" {
		return fmt.Errorf("%w: difficulty without subject", ErrBrokenChain)
	}
	if s.Subject != "" && s.Exam == "" {
		return fmt.Errorf("%w: subject without exam", ErrBrokenChain)
	}
	if s.WaitingForAnswer != (s.CurrentQuestion != "") {
		return ErrWaitingMismatch
	}
	if s.CorrectCount > s.AttemptsCount {
		return ErrCounters
	}
	return nil
}
