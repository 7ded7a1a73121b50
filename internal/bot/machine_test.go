package bot

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/exambot/internal/catalog"
	"github.com/pavelanni/exambot/internal/evaluator"
	"github.com/pavelanni/exambot/internal/i18n"
	"github.com/pavelanni/exambot/internal/llm"
	"github.com/pavelanni/exambot/internal/model"
)

func TestMain(m *testing.M) {
	if err := i18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeSource struct {
	calls int
	err   error
}

func (f *fakeSource) Next(_ context.Context, sel model.Selection) (model.Question, error) {
	f.calls++
	if f.err != nil {
		return model.Question{}, f.err
	}
	return model.Question{ID: int64(f.calls), Text: "Solve 2x = 4 for x.", Source: model.SourceLocal,
		Exam: sel.Exam, Subject: sel.Subject, Difficulty: sel.Difficulty, TaskType: sel.TaskType}, nil
}

// fakeEvaluator keeps the real pre-checks and replaces the judge.
type fakeEvaluator struct {
	*evaluator.Evaluator
	verdict evaluator.Verdict
	err     error
	calls   int
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _ model.Selection, _, _ string) (evaluator.Verdict, error) {
	f.calls++
	return f.verdict, f.err
}

type fixture struct {
	cat     *catalog.Catalog
	source  *fakeSource
	eval    *fakeEvaluator
	machine *Machine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.Default("en")
	require.NoError(t, err)
	f := &fixture{
		cat:    cat,
		source: &fakeSource{},
		eval: &fakeEvaluator{
			Evaluator: evaluator.New(llm.NewMock(), cat, "strict", "en"),
			verdict:   evaluator.Verdict{Correct: true, Explanation: "x = 2 is right."},
		},
	}
	f.machine = NewMachine(cat, f.source, f.eval)
	return f
}

func (f *fixture) step(t *testing.T, sess model.UserSession, text string) Outcome {
	t.Helper()
	out, err := f.machine.Step(context.Background(), sess, text)
	require.NoError(t, err)
	require.NotEmpty(t, out.Replies)
	require.NoError(t, out.Session.Validate())
	return out
}

func ready(task model.TaskType) model.UserSession {
	return model.UserSession{UserID: "vk:1", Exam: model.ExamA, Subject: "Math",
		Difficulty: model.DifficultyBasic, TaskType: task}
}

func waiting(task model.TaskType) model.UserSession {
	s := ready(task)
	s.PoseQuestion(model.Question{ID: 5, Text: "Solve 2x = 4 for x.", Source: model.SourceLocal})
	return s
}

func TestStateOf(t *testing.T) {
	tests := []struct {
		name string
		sess model.UserSession
		want State
	}{
		{"empty", model.UserSession{}, StateNeedExam},
		{"exam", model.UserSession{Exam: model.ExamA}, StateNeedSubject},
		{"subject", model.UserSession{Exam: model.ExamA, Subject: "Math"}, StateNeedDifficulty},
		{"difficulty", model.UserSession{Exam: model.ExamA, Subject: "Math", Difficulty: model.DifficultyBasic}, StateNeedTaskType},
		{"complete", ready(model.TaskTest), StateReady},
		{"waiting", waiting(model.TaskTest), StateAwaitingAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StateOf(tt.sess))
		})
	}
}

func TestFreshUserGreeting(t *testing.T) {
	f := newFixture(t)
	out := f.step(t, model.UserSession{UserID: "vk:1"}, "hello")

	assert.False(t, out.Mutated)
	assert.Equal(t, model.UserSession{UserID: "vk:1"}, out.Session)
	assert.Contains(t, out.Replies[0].Text, "Hi!")
	assert.Contains(t, out.Replies[0].Menu.Labels(), "OGE")
	assert.Contains(t, out.Replies[0].Menu.Labels(), "EGE")
}

func TestGreetingAndStatsAreIdempotent(t *testing.T) {
	f := newFixture(t)
	sessions := []model.UserSession{
		{},
		{Exam: model.ExamB},
		ready(model.TaskPractice),
		waiting(model.TaskTest),
	}
	for _, sess := range sessions {
		for _, text := range []string{"Hello", "hi", "My stats", "/stats", "Help"} {
			out := f.step(t, sess, text)
			assert.False(t, out.Mutated, "%q in %s", text, StateOf(sess))
			assert.Equal(t, sess, out.Session)
			assert.Equal(t, f.machine.menus.For(StateOf(sess), sess.Exam), out.Replies[0].Menu)
		}
	}
	assert.Zero(t, f.source.calls)
	assert.Zero(t, f.eval.calls)
}

func TestStatsText(t *testing.T) {
	f := newFixture(t)
	sess := ready(model.TaskTest)
	sess.AttemptsCount = 3
	sess.CorrectCount = 2

	out := f.step(t, sess, "stats")
	text := out.Replies[0].Text
	assert.Contains(t, text, "Answered: 3")
	assert.Contains(t, text, "Correct: 2")
	assert.Contains(t, text, "Accuracy: 66.7%")
	assert.Contains(t, text, "OGE · Math · Basic · Test")

	out = f.step(t, model.UserSession{}, "stats")
	assert.Contains(t, out.Replies[0].Text, "Accuracy: 0.0%")
	assert.NotContains(t, out.Replies[0].Text, "Current choice")
}

func TestSubjectNotInExamList(t *testing.T) {
	f := newFixture(t)
	sess := model.UserSession{Exam: model.ExamA}

	out := f.step(t, sess, "Math (profile)")
	assert.False(t, out.Mutated)
	assert.Empty(t, out.Session.Subject)
	assert.Contains(t, out.Replies[0].Text, "pick one from the menu")
	assert.Contains(t, out.Replies[0].Menu.Labels(), "Math")
	assert.NotContains(t, out.Replies[0].Menu.Labels(), "Math (profile)")
}

func TestSelectionFlowAndStart(t *testing.T) {
	f := newFixture(t)
	sess := model.UserSession{UserID: "vk:1"}

	steps := []struct {
		text  string
		state State
	}{
		{"ОГЭ", StateNeedSubject},
		{"  math ", StateNeedDifficulty},
		{"Basic", StateNeedTaskType},
		{"test", StateReady},
	}
	for _, st := range steps {
		out := f.step(t, sess, st.text)
		assert.True(t, out.Mutated, st.text)
		sess = out.Session
		assert.Equal(t, st.state, StateOf(sess), st.text)
		assert.Equal(t, f.machine.menus.For(st.state, sess.Exam), out.Replies[0].Menu)
	}
	assert.Equal(t, "Math", sess.Subject)

	out := f.step(t, sess, "begin")
	assert.Equal(t, 1, f.source.calls)
	assert.True(t, out.Mutated)
	assert.True(t, out.Session.WaitingForAnswer)
	assert.Equal(t, "Solve 2x = 4 for x.", out.Session.CurrentQuestion)
	require.NotNil(t, out.Session.CurrentQuestionID)
	assert.Equal(t, int64(1), *out.Session.CurrentQuestionID)
	assert.Equal(t, model.SourceLocal, out.Session.CurrentSource)
	assert.Contains(t, out.Replies[0].Text, "Solve 2x = 4 for x.")
}

func TestStartWithMissingSelection(t *testing.T) {
	f := newFixture(t)
	out := f.step(t, model.UserSession{Exam: model.ExamA, Subject: "Math"}, "Get a task")
	assert.False(t, out.Mutated)
	assert.Zero(t, f.source.calls)
	assert.Contains(t, out.Replies[0].Text, "choose a difficulty")
}

func TestStartWhileWaitingIsRefused(t *testing.T) {
	f := newFixture(t)
	sess := waiting(model.TaskTest)

	out := f.step(t, sess, "next question")
	assert.False(t, out.Mutated)
	assert.Equal(t, sess, out.Session)
	assert.Zero(t, f.source.calls)
	assert.Contains(t, out.Replies[0].Text, "Answer the current question first")
}

func TestGiveUpPhrase(t *testing.T) {
	f := newFixture(t)
	sess := waiting(model.TaskTest)

	for _, text := range []string{"hz", "Don't know.", "IDK!"} {
		out := f.step(t, sess, text)
		assert.False(t, out.Mutated, text)
		assert.True(t, out.Session.WaitingForAnswer)
		assert.Zero(t, out.Session.AttemptsCount)
		assert.Nil(t, out.Answer)
		assert.Contains(t, out.Replies[0].Text, "Don't give up")
	}
	assert.Zero(t, f.eval.calls)
}

func TestPracticeLengthGate(t *testing.T) {
	f := newFixture(t)
	sess := waiting(model.TaskPractice)

	out := f.step(t, sess, strings.Repeat("a", 39))
	assert.False(t, out.Mutated)
	assert.Zero(t, f.eval.calls)
	assert.Contains(t, out.Replies[0].Text, "at least 40 characters")

	out = f.step(t, sess, strings.Repeat("a", 40))
	assert.True(t, out.Mutated)
	assert.Equal(t, 1, f.eval.calls)
	assert.Equal(t, 1, out.Session.AttemptsCount)
}

func TestAnswerEvaluated(t *testing.T) {
	f := newFixture(t)
	sess := waiting(model.TaskTest)
	answer := "Divide both sides by two, so x equals 2, which checks out."
	require.Len(t, []rune(answer), 58)

	out := f.step(t, sess, answer)
	assert.Equal(t, 1, f.eval.calls)
	assert.True(t, out.Mutated)
	assert.Equal(t, 1, out.Session.AttemptsCount)
	assert.Equal(t, 1, out.Session.CorrectCount)
	assert.Empty(t, out.Session.CurrentQuestion)
	assert.False(t, out.Session.WaitingForAnswer)

	require.NotNil(t, out.Answer)
	assert.Equal(t, answer, out.Answer.SubmittedText)
	assert.Equal(t, "Solve 2x = 4 for x.", out.Answer.QuestionText)
	assert.Equal(t, model.SourceLocal, out.Answer.Source)
	require.NotNil(t, out.Answer.QuestionID)
	assert.Equal(t, int64(5), *out.Answer.QuestionID)
	assert.True(t, out.Answer.IsCorrect)

	assert.Contains(t, out.Replies[0].Text, "✅ Correct!")
	assert.Contains(t, out.Replies[0].Text, "x = 2 is right.")
	assert.Contains(t, out.Replies[0].Text, "You have answered 1 question so far.")
	assert.Equal(t, f.machine.menus.For(StateReady, model.ExamA), out.Replies[0].Menu)
}

func TestWrongAnswer(t *testing.T) {
	f := newFixture(t)
	f.eval.verdict = evaluator.Verdict{Correct: false, Explanation: "x is 2, not 3."}

	out := f.step(t, waiting(model.TaskTest), "x = 3")
	assert.Equal(t, 1, out.Session.AttemptsCount)
	assert.Zero(t, out.Session.CorrectCount)
	assert.Contains(t, out.Replies[0].Text, "❌ Not quite.")
	assert.False(t, out.Answer.IsCorrect)
}

func TestResetWhileWaiting(t *testing.T) {
	f := newFixture(t)

	out := f.step(t, waiting(model.TaskTest), "change exam")
	assert.True(t, out.Mutated)
	assert.Equal(t, StateNeedExam, StateOf(out.Session))
	assert.False(t, out.Session.WaitingForAnswer)
	assert.Empty(t, out.Session.CurrentQuestion)
	assert.Nil(t, out.Session.CurrentQuestionID)

	out = f.step(t, waiting(model.TaskTest), "Change subject")
	assert.Equal(t, StateNeedSubject, StateOf(out.Session))
	assert.Equal(t, model.ExamA, out.Session.Exam)

	out = f.step(t, waiting(model.TaskTest), "Change difficulty")
	assert.Equal(t, StateNeedDifficulty, StateOf(out.Session))
	assert.Equal(t, "Math", out.Session.Subject)
	assert.Zero(t, f.eval.calls)
}

func TestResetWithoutPrerequisite(t *testing.T) {
	f := newFixture(t)

	out := f.step(t, model.UserSession{}, "Change subject")
	assert.False(t, out.Mutated)
	assert.Contains(t, out.Replies[0].Text, "Choose an exam")

	out = f.step(t, model.UserSession{Exam: model.ExamB}, "Change difficulty")
	assert.False(t, out.Mutated)
	assert.Contains(t, out.Replies[0].Text, "choose a subject")
}

func TestExamSelectionAnyState(t *testing.T) {
	f := newFixture(t)
	out := f.step(t, waiting(model.TaskPractice), "EGE")
	assert.True(t, out.Mutated)
	assert.Equal(t, model.ExamB, out.Session.Exam)
	assert.Equal(t, StateNeedSubject, StateOf(out.Session))
	assert.Contains(t, out.Replies[0].Menu.Labels(), "Math (profile)")
}

func TestFallback(t *testing.T) {
	f := newFixture(t)

	out := f.step(t, ready(model.TaskTest), "what now")
	assert.False(t, out.Mutated)
	assert.Contains(t, out.Replies[0].Text, "to get the next task")

	out = f.step(t, model.UserSession{}, "what now")
	assert.False(t, out.Mutated)
	assert.Contains(t, out.Replies[0].Text, "Choose an exam")

	out = f.step(t, waiting(model.TaskTest), "   ")
	assert.False(t, out.Mutated)
	assert.Contains(t, out.Replies[0].Text, "waiting for your answer")
	assert.Zero(t, f.eval.calls)
}

func TestStaleSubjectIsDropped(t *testing.T) {
	f := newFixture(t)
	sess := model.UserSession{Exam: model.ExamA, Subject: "Astrology", Difficulty: model.DifficultyBasic}

	out := f.step(t, sess, "stats")
	assert.True(t, out.Mutated)
	assert.Empty(t, out.Session.Subject)
	assert.Empty(t, out.Session.Difficulty)
}

func TestCollaboratorFailureLeavesSession(t *testing.T) {
	f := newFixture(t)
	f.source.err = &llm.ErrProviderUnavailable{}
	_, err := f.machine.Step(context.Background(), ready(model.TaskTheory), "Get a task")
	require.Error(t, err)
	var unavailable *llm.ErrProviderUnavailable
	assert.True(t, errors.As(err, &unavailable))

	f.eval.err = errors.New("judge timeout")
	_, err = f.machine.Step(context.Background(), waiting(model.TaskTest), "x is two")
	require.Error(t, err)
}

// Random input sequences must never break the session invariants.
func TestRandomInputsKeepInvariants(t *testing.T) {
	f := newFixture(t)
	r := rand.New(rand.NewPCG(7, 11))
	inputs := []string{
		"hello", "help", "stats", "change exam", "change subject", "change difficulty",
		"OGE", "EGE", "Math", "Math (profile)", "Physics", "Literature",
		"Basic", "Medium", "hard", "Theory", "Practice", "Test", "essay",
		"Get a task", "next", "hz", "x = 2", strings.Repeat("reasoning ", 10), "", "???",
	}

	for run := 0; run < 100; run++ {
		sess := model.UserSession{UserID: "tg:1"}
		for i := 0; i < 60; i++ {
			text := inputs[r.IntN(len(inputs))]
			f.eval.verdict.Correct = r.IntN(2) == 0
			out, err := f.machine.Step(context.Background(), sess, text)
			require.NoError(t, err)
			require.NoError(t, out.Session.Validate(), "run %d step %d text %q", run, i, text)
			if out.Session.Subject != "" {
				require.True(t, f.cat.HasSubject(out.Session.Exam, out.Session.Subject))
			}
			require.GreaterOrEqual(t, out.Session.AttemptsCount, sess.AttemptsCount)
			if sess.WaitingForAnswer && out.Session.WaitingForAnswer {
				require.Equal(t, sess.CurrentQuestion, out.Session.CurrentQuestion)
			}
			sess = out.Session
		}
	}
}
