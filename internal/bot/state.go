// Package bot holds the conversation state machine and the per-message engine
// that loads, advances and saves a user's session.
package bot

import "github.com/pavelanni/exambot/internal/model"

// State is the conversation position derived from a session.
type State int

const (
	StateNeedExam State = iota
	StateNeedSubject
	StateNeedDifficulty
	StateNeedTaskType
	StateReady
	StateAwaitingAnswer
)

var stateNames = map[State]string{
	StateNeedExam:       "need_exam",
	StateNeedSubject:    "need_subject",
	StateNeedDifficulty: "need_difficulty",
	StateNeedTaskType:   "need_task_type",
	StateReady:          "ready",
	StateAwaitingAnswer: "awaiting_answer",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// StateOf returns the state of sess. The first missing selection wins.
func StateOf(sess model.UserSession) State {
	switch {
	case sess.WaitingForAnswer:
		return StateAwaitingAnswer
	case sess.Exam == "":
		return StateNeedExam
	case sess.Subject == "":
		return StateNeedSubject
	case sess.Difficulty == "":
		return StateNeedDifficulty
	case sess.TaskType == "":
		return StateNeedTaskType
	default:
		return StateReady
	}
}
