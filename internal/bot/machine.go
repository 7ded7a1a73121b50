package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/pavelanni/exambot/internal/catalog"
	"github.com/pavelanni/exambot/internal/evaluator"
	"github.com/pavelanni/exambot/internal/i18n"
	"github.com/pavelanni/exambot/internal/model"
)

// QuestionSource supplies the next task for a complete selection.
type QuestionSource interface {
	Next(ctx context.Context, sel model.Selection) (model.Question, error)
}

// AnswerEvaluator pre-checks and judges free-text answers.
type AnswerEvaluator interface {
	Precheck(answer string, taskType model.TaskType) evaluator.Rejection
	Evaluate(ctx context.Context, sel model.Selection, question, answer string) (evaluator.Verdict, error)
}

// Outcome is the result of one step. Session is the new session value;
// Answer is set when an attempt was evaluated.
type Outcome struct {
	Session model.UserSession
	Replies []model.Reply
	Answer  *model.AnswerLogEntry
	Mutated bool
}

// Machine decides how a session reacts to one inbound text.
// It performs no persistence.
type Machine struct {
	cat       *catalog.Catalog
	menus     *Menus
	questions QuestionSource
	eval      AnswerEvaluator
}

// NewMachine creates a Machine.
func NewMachine(cat *catalog.Catalog, questions QuestionSource, eval AnswerEvaluator) *Machine {
	return &Machine{cat: cat, menus: NewMenus(cat), questions: questions, eval: eval}
}

// Step classifies text against sess and returns the resulting session and replies.
// An error means a collaborator failed; the input session must then be kept as is.
// Replies are localized through the i18n localizer carried by ctx.
func (m *Machine) Step(ctx context.Context, sess model.UserSession, text string) (Outcome, error) {
	before := sess

	// Subject lists are configuration; drop a subject the exam no longer offers.
	if sess.Subject != "" && !m.cat.HasSubject(sess.Exam, sess.Subject) {
		sess.ResetSubject()
	}

	replies, answer, err := m.dispatch(ctx, &sess, text)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		Session: sess,
		Replies: replies,
		Answer:  answer,
		Mutated: !sameState(before, sess),
	}, nil
}

func (m *Machine) dispatch(ctx context.Context, sess *model.UserSession, text string) ([]model.Reply, *model.AnswerLogEntry, error) {
	norm := catalog.Normalize(text)
	cmds := m.cat.Commands
	state := StateOf(*sess)

	switch {
	case m.cat.Is(cmds.Greeting, norm):
		return m.with(i18n.T(ctx, "Welcome"), m.prompt(ctx, *sess)), nil, nil

	case m.cat.Is(cmds.Help, norm):
		help := i18n.Td(ctx, "Help", map[string]any{"Start": cmds.Start.Label, "Stats": cmds.Stats.Label})
		return m.with(help, m.prompt(ctx, *sess)), nil, nil

	case m.cat.Is(cmds.Stats, norm):
		return []model.Reply{{Text: m.stats(ctx, *sess), Menu: m.menus.For(state, sess.Exam)}}, nil, nil

	case m.cat.Is(cmds.ResetExam, norm):
		sess.ResetExam()
		return m.only(m.prompt(ctx, *sess)), nil, nil

	case m.cat.Is(cmds.ResetSubject, norm):
		if sess.Exam != "" {
			sess.ResetSubject()
		}
		return m.only(m.prompt(ctx, *sess)), nil, nil

	case m.cat.Is(cmds.ResetDifficulty, norm):
		if sess.Subject != "" {
			sess.ResetDifficulty()
		}
		return m.only(m.prompt(ctx, *sess)), nil, nil
	}

	if exam, ok := m.cat.MatchExam(norm); ok {
		sess.SelectExam(exam)
		return m.only(m.prompt(ctx, *sess)), nil, nil
	}

	switch state {
	case StateNeedSubject:
		subject, ok := m.cat.MatchSubject(sess.Exam, norm)
		if !ok {
			return m.repick(ctx, *sess), nil, nil
		}
		sess.SelectSubject(subject)
		return m.only(m.prompt(ctx, *sess)), nil, nil

	case StateNeedDifficulty:
		d, ok := m.cat.MatchDifficulty(norm)
		if !ok {
			return m.repick(ctx, *sess), nil, nil
		}
		sess.SelectDifficulty(d)
		return m.only(m.prompt(ctx, *sess)), nil, nil

	case StateNeedTaskType:
		t, ok := m.cat.MatchTaskType(norm)
		if !ok {
			return m.repick(ctx, *sess), nil, nil
		}
		sess.SelectTaskType(t)
		return m.only(m.prompt(ctx, *sess)), nil, nil
	}

	if m.cat.Is(cmds.Start, norm) {
		return m.start(ctx, sess)
	}

	if state == StateAwaitingAnswer && strings.TrimSpace(text) != "" {
		return m.answer(ctx, sess, text)
	}

	return m.fallback(ctx, *sess), nil, nil
}

func (m *Machine) start(ctx context.Context, sess *model.UserSession) ([]model.Reply, *model.AnswerLogEntry, error) {
	switch StateOf(*sess) {
	case StateAwaitingAnswer:
		return m.with(i18n.T(ctx, "AnswerFirst"), m.prompt(ctx, *sess)), nil, nil
	case StateReady:
	default:
		return m.only(m.prompt(ctx, *sess)), nil, nil
	}

	q, err := m.questions.Next(ctx, sess.Selection())
	if err != nil {
		return nil, nil, fmt.Errorf("next question: %w", err)
	}
	sess.PoseQuestion(q)
	return m.only(m.questionReply(ctx, *sess)), nil, nil
}

func (m *Machine) answer(ctx context.Context, sess *model.UserSession, text string) ([]model.Reply, *model.AnswerLogEntry, error) {
	awaiting := m.menus.For(StateAwaitingAnswer, sess.Exam)

	switch m.eval.Precheck(text, sess.TaskType) {
	case evaluator.RejectGiveUp:
		return []model.Reply{{Text: i18n.T(ctx, "GiveUp"), Menu: awaiting}}, nil, nil
	case evaluator.RejectTooShort:
		msg := i18n.Td(ctx, "TooShort", map[string]any{"Min": m.cat.MinLength(sess.TaskType)})
		return []model.Reply{{Text: msg, Menu: awaiting}}, nil, nil
	}

	verdict, err := m.eval.Evaluate(ctx, sess.Selection(), sess.CurrentQuestion, text)
	if err != nil {
		return nil, nil, fmt.Errorf("evaluate answer: %w", err)
	}

	entry := &model.AnswerLogEntry{
		UserID:        sess.UserID,
		QuestionID:    sess.CurrentQuestionID,
		Source:        sess.CurrentSource,
		QuestionText:  sess.CurrentQuestion,
		SubmittedText: text,
		IsCorrect:     verdict.Correct,
		Explanation:   verdict.Explanation,
	}
	sess.RecordAttempt(verdict.Correct)

	marker := i18n.T(ctx, "VerdictWrong")
	if verdict.Correct {
		marker = i18n.T(ctx, "VerdictCorrect")
	}
	msg := strings.TrimSpace(i18n.Td(ctx, "Verdict", map[string]any{"Marker": marker, "Explanation": verdict.Explanation}))
	count := i18n.Tp(ctx, "QuestionsAnswered", sess.AttemptsCount, nil)
	next := i18n.Td(ctx, "NudgeReady", map[string]any{"Start": m.cat.Commands.Start.Label})
	return []model.Reply{{Text: msg + "\n\n" + count + " " + next, Menu: m.menus.For(StateReady, sess.Exam)}}, entry, nil
}

func (m *Machine) fallback(ctx context.Context, sess model.UserSession) []model.Reply {
	switch StateOf(sess) {
	case StateAwaitingAnswer:
		return m.only(m.prompt(ctx, sess))
	case StateReady:
		msg := i18n.Td(ctx, "NudgeReady", map[string]any{"Start": m.cat.Commands.Start.Label})
		return []model.Reply{{Text: msg, Menu: m.menus.For(StateReady, sess.Exam)}}
	default:
		return m.repick(ctx, sess)
	}
}

// prompt asks for whatever the session needs next.
func (m *Machine) prompt(ctx context.Context, sess model.UserSession) model.Reply {
	state := StateOf(sess)
	menu := m.menus.For(state, sess.Exam)
	var text string
	switch state {
	case StateNeedExam:
		text = i18n.T(ctx, "ChooseExam")
	case StateNeedSubject:
		text = i18n.Td(ctx, "ChooseSubject", map[string]any{"Exam": m.cat.ExamLabel(sess.Exam)})
	case StateNeedDifficulty:
		text = i18n.Td(ctx, "ChooseDifficulty", map[string]any{"Subject": sess.Subject})
	case StateNeedTaskType:
		text = i18n.T(ctx, "ChooseTaskType")
	case StateReady:
		text = i18n.Td(ctx, "Ready", map[string]any{
			"Selection": m.describe(sess),
			"Start":     m.cat.Commands.Start.Label,
		})
	case StateAwaitingAnswer:
		return model.Reply{
			Text: i18n.T(ctx, "AwaitingAnswer") + "\n\n" + m.questionReply(ctx, sess).Text,
			Menu: menu,
		}
	}
	return model.Reply{Text: text, Menu: menu}
}

func (m *Machine) questionReply(ctx context.Context, sess model.UserSession) model.Reply {
	return model.Reply{
		Text: i18n.Td(ctx, "Question", map[string]any{"Text": sess.CurrentQuestion}),
		Menu: m.menus.For(StateAwaitingAnswer, sess.Exam),
	}
}

func (m *Machine) repick(ctx context.Context, sess model.UserSession) []model.Reply {
	return m.with(i18n.T(ctx, "PickFromMenu"), m.prompt(ctx, sess))
}

func (m *Machine) stats(ctx context.Context, sess model.UserSession) string {
	text := i18n.Td(ctx, "Stats", map[string]any{
		"Attempts": sess.AttemptsCount,
		"Correct":  sess.CorrectCount,
		"Accuracy": fmt.Sprintf("%.1f", sess.Accuracy()),
	})
	if sess.Exam != "" {
		text += "\n" + i18n.Td(ctx, "StatsSelection", map[string]any{"Selection": m.describe(sess)})
	}
	return text
}

// describe renders the selected fields, e.g. "OGE · Math · Basic · Test".
func (m *Machine) describe(sess model.UserSession) string {
	var parts []string
	if sess.Exam != "" {
		parts = append(parts, m.cat.ExamLabel(sess.Exam))
	}
	if sess.Subject != "" {
		parts = append(parts, sess.Subject)
	}
	if sess.Difficulty != "" {
		parts = append(parts, m.cat.DifficultyLabel(sess.Difficulty))
	}
	if sess.TaskType != "" {
		parts = append(parts, m.cat.TaskTypeLabel(sess.TaskType))
	}
	return strings.Join(parts, " · ")
}

// with prefixes lead to the prompt's text and keeps its menu.
func (m *Machine) with(lead string, p model.Reply) []model.Reply {
	return []model.Reply{{Text: lead + "\n\n" + p.Text, Menu: p.Menu}}
}

func (m *Machine) only(p model.Reply) []model.Reply {
	return []model.Reply{p}
}

// sameState reports whether two sessions hold the same persisted conversation fields.
func sameState(a, b model.UserSession) bool {
	if (a.CurrentQuestionID == nil) != (b.CurrentQuestionID == nil) {
		return false
	}
	if a.CurrentQuestionID != nil && *a.CurrentQuestionID != *b.CurrentQuestionID {
		return false
	}
	return a.Exam == b.Exam &&
		a.Subject == b.Subject &&
		a.Difficulty == b.Difficulty &&
		a.TaskType == b.TaskType &&
		a.CurrentQuestion == b.CurrentQuestion &&
		a.CurrentSource == b.CurrentSource &&
		a.WaitingForAnswer == b.WaitingForAnswer &&
		a.AttemptsCount == b.AttemptsCount &&
		a.CorrectCount == b.CorrectCount
}
