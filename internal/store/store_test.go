package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pavelanni/exambot/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestQuestion(t *testing.T, s *Store, text string, src model.Source, task model.TaskType) int64 {
	t.Helper()
	id, err := s.InsertQuestion(context.Background(), model.Question{
		Exam:       model.ExamA,
		Subject:    "Math",
		Difficulty: model.DifficultyBasic,
		TaskType:   task,
		Text:       text,
		Source:     src,
	})
	if err != nil {
		t.Fatalf("insertTestQuestion: %v", err)
	}
	return id
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open("oracle", "x"); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	got := pg.rebind(`SELECT a FROM t WHERE b = ? AND c = ?`)
	if got != `SELECT a FROM t WHERE b = $1 AND c = $2` {
		t.Errorf("rebind postgres = %q", got)
	}
	lite := &Store{driver: DriverSQLite}
	if got := lite.rebind(`x = ?`); got != `x = ?` {
		t.Errorf("rebind sqlite = %q", got)
	}
}

func TestGetOrCreateSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSession(ctx, "vk:1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	sess, err := s.GetOrCreateSession(ctx, "vk:1")
	if err != nil {
		t.Fatalf("GetOrCreateSession: %v", err)
	}
	if sess.UserID != "vk:1" || sess.Exam != "" || sess.WaitingForAnswer || sess.Version != 0 {
		t.Errorf("unexpected new session: %+v", sess)
	}
	if sess.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}

	// Second call returns the same row.
	again, err := s.GetOrCreateSession(ctx, "vk:1")
	if err != nil {
		t.Fatalf("GetOrCreateSession again: %v", err)
	}
	if !again.CreatedAt.Equal(sess.CreatedAt) {
		t.Errorf("session recreated: %v vs %v", again.CreatedAt, sess.CreatedAt)
	}
}

func TestConcurrentFirstContact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.GetOrCreateSession(ctx, "tg:7"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("GetOrCreateSession: %v", err)
	}

	all, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 session, got %d", len(all))
	}
}

func TestSaveTurnRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	qid := insertTestQuestion(t, s, "2+2?", model.SourceLocal, model.TaskTest)
	sess, _ := s.GetOrCreateSession(ctx, "vk:2")
	sess.SelectExam(model.ExamA)
	sess.SelectSubject("Math")
	sess.SelectDifficulty(model.DifficultyBasic)
	sess.SelectTaskType(model.TaskTest)
	sess.PoseQuestion(model.Question{ID: qid, Text: "2+2?", Source: model.SourceLocal})

	if err := s.SaveTurn(ctx, &sess, nil); err != nil {
		t.Fatalf("SaveTurn: %v", err)
	}
	if sess.Version != 1 {
		t.Errorf("version = %d, want 1", sess.Version)
	}

	got, err := s.GetSession(ctx, "vk:2")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Exam != model.ExamA || got.Subject != "Math" || got.TaskType != model.TaskTest {
		t.Errorf("selection not saved: %+v", got)
	}
	if !got.WaitingForAnswer || got.CurrentQuestion != "2+2?" || got.CurrentSource != model.SourceLocal {
		t.Errorf("question not saved: %+v", got)
	}
	if got.CurrentQuestionID == nil || *got.CurrentQuestionID != qid {
		t.Errorf("question id = %v, want %d", got.CurrentQuestionID, qid)
	}
	if got.Version != 1 {
		t.Errorf("stored version = %d", got.Version)
	}

	// Answer and log in one turn.
	entry := &model.AnswerLogEntry{
		QuestionID:    got.CurrentQuestionID,
		Source:        got.CurrentSource,
		QuestionText:  got.CurrentQuestion,
		SubmittedText: "4",
		IsCorrect:     true,
		Explanation:   "Right.",
	}
	got.RecordAttempt(true)
	if err := s.SaveTurn(ctx, &got, entry); err != nil {
		t.Fatalf("SaveTurn with answer: %v", err)
	}
	if entry.ID == 0 || entry.UserID != "vk:2" {
		t.Errorf("answer entry not filled: %+v", entry)
	}

	final, _ := s.GetSession(ctx, "vk:2")
	if final.WaitingForAnswer || final.CurrentQuestionID != nil || final.AttemptsCount != 1 || final.CorrectCount != 1 {
		t.Errorf("unexpected final session: %+v", final)
	}

	answers, err := s.ListAnswers(ctx, "vk:2")
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	if len(answers) != 1 || !answers[0].IsCorrect || answers[0].SubmittedText != "4" {
		t.Fatalf("unexpected answers: %+v", answers)
	}
	if answers[0].QuestionID == nil || *answers[0].QuestionID != qid {
		t.Errorf("answer question id = %v", answers[0].QuestionID)
	}
}

func TestSaveTurnVersionConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := s.GetOrCreateSession(ctx, "vk:3")
	b, _ := s.GetOrCreateSession(ctx, "vk:3")

	a.SelectExam(model.ExamA)
	if err := s.SaveTurn(ctx, &a, nil); err != nil {
		t.Fatalf("first save: %v", err)
	}

	b.SelectExam(model.ExamB)
	entry := &model.AnswerLogEntry{Source: model.SourceAI, QuestionText: "q", SubmittedText: "a"}
	err := s.SaveTurn(ctx, &b, entry)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if b.Version != 0 {
		t.Errorf("failed save must not bump version, got %d", b.Version)
	}

	got, _ := s.GetSession(ctx, "vk:3")
	if got.Exam != model.ExamA {
		t.Errorf("stale write applied: exam = %q", got.Exam)
	}
	answers, _ := s.ListAnswers(ctx, "")
	if len(answers) != 0 {
		t.Errorf("answer log written despite conflict: %d entries", len(answers))
	}
}

func TestClearSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, _ := s.GetOrCreateSession(ctx, "vk:4")
	sess.SelectExam(model.ExamB)
	sess.SelectSubject("Physics")
	sess.AttemptsCount, sess.CorrectCount = 5, 3
	if err := s.SaveTurn(ctx, &sess, nil); err != nil {
		t.Fatalf("SaveTurn: %v", err)
	}

	if err := s.ClearSession(ctx, "vk:4"); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	got, _ := s.GetSession(ctx, "vk:4")
	if got.Exam != "" || got.Subject != "" {
		t.Errorf("selection not cleared: %+v", got)
	}
	if got.AttemptsCount != 5 || got.CorrectCount != 3 {
		t.Errorf("counters changed: %+v", got)
	}
	if got.Version != 2 {
		t.Errorf("version = %d, want 2", got.Version)
	}

	if err := s.ClearSession(ctx, "vk:missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQuestions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	count, err := s.QuestionCount(ctx, model.QuestionFilter{})
	if err != nil {
		t.Fatalf("QuestionCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 questions, got %d", count)
	}

	id1 := insertTestQuestion(t, s, "Q1", model.SourceLocal, model.TaskTest)
	id2 := insertTestQuestion(t, s, "Q2", model.SourceLocal, model.TaskTest)
	insertTestQuestion(t, s, "Q3", model.SourceAI, model.TaskTest)
	insertTestQuestion(t, s, "Q4", model.SourceLocal, model.TaskTheory)

	q, err := s.GetQuestion(ctx, id1)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if q.Text != "Q1" || q.Source != model.SourceLocal || q.TaskType != model.TaskTest || q.Exam != model.ExamA {
		t.Errorf("unexpected question: %+v", q)
	}
	if _, err := s.GetQuestion(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	ids, err := s.ListQuestionIDs(ctx, model.QuestionFilter{
		Exam: model.ExamA, Subject: "Math", Difficulty: model.DifficultyBasic,
		TaskType: model.TaskTest, Source: model.SourceLocal,
	})
	if err != nil {
		t.Fatalf("ListQuestionIDs: %v", err)
	}
	if len(ids) != 2 || ids[0] != id1 || ids[1] != id2 {
		t.Errorf("ids = %v, want [%d %d]", ids, id1, id2)
	}

	ids, _ = s.ListQuestionIDs(ctx, model.QuestionFilter{Exam: model.ExamB})
	if len(ids) != 0 {
		t.Errorf("expected no EXAM_B questions, got %v", ids)
	}

	count, _ = s.QuestionCount(ctx, model.QuestionFilter{Source: model.SourceAI})
	if count != 1 {
		t.Errorf("AI count = %d, want 1", count)
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Missing file returns empty string.
	hash, err := s.GetImportedFileHash(ctx, "/some/path.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := s.SetImportedFileHash(ctx, "/some/path.json", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	hash, _ = s.GetImportedFileHash(ctx, "/some/path.json")
	if hash != "abc123" {
		t.Errorf("expected 'abc123', got %q", hash)
	}

	// Update existing.
	if err := s.SetImportedFileHash(ctx, "/some/path.json", "def456"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	hash, _ = s.GetImportedFileHash(ctx, "/some/path.json")
	if hash != "def456" {
		t.Errorf("expected 'def456', got %q", hash)
	}
}

func TestExportAnswers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"vk:1", "tg:2"} {
		sess, _ := s.GetOrCreateSession(ctx, id)
		sess.SelectExam(model.ExamA)
		sess.PoseQuestion(model.Question{Text: "q", Source: model.SourceAI})
		if err := s.SaveTurn(ctx, &sess, nil); err != nil {
			t.Fatalf("SaveTurn: %v", err)
		}
		sess.RecordAttempt(id == "vk:1")
		entry := &model.AnswerLogEntry{Source: model.SourceAI, QuestionText: "q", SubmittedText: "a", IsCorrect: id == "vk:1"}
		if err := s.SaveTurn(ctx, &sess, entry); err != nil {
			t.Fatalf("SaveTurn: %v", err)
		}
	}

	exp, err := s.ExportAnswers(ctx)
	if err != nil {
		t.Fatalf("ExportAnswers: %v", err)
	}
	if len(exp.Users) != 2 || len(exp.Answers) != 2 {
		t.Fatalf("unexpected export sizes: %d users, %d answers", len(exp.Users), len(exp.Answers))
	}
	// Ordered by user id: tg:2 before vk:1.
	if exp.Users[0].UserID != "tg:2" || exp.Users[0].Accuracy != 0 {
		t.Errorf("unexpected first user: %+v", exp.Users[0])
	}
	if exp.Users[1].Accuracy != 100 {
		t.Errorf("vk:1 accuracy = %v", exp.Users[1].Accuracy)
	}
}
