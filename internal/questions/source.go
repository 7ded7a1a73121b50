// Package questions supplies tasks for a selection, either from the local
// question bank or freshly generated by the language model.
package questions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/pavelanni/exambot/internal/catalog"
	"github.com/pavelanni/exambot/internal/llm"
	"github.com/pavelanni/exambot/internal/llm/prompts"
	"github.com/pavelanni/exambot/internal/model"
)

// Store is the part of the persistence layer the question source needs.
type Store interface {
	ListQuestionIDs(ctx context.Context, f model.QuestionFilter) ([]int64, error)
	GetQuestion(ctx context.Context, id int64) (model.Question, error)
	InsertQuestion(ctx context.Context, q model.Question) (int64, error)
}

// Source picks or generates the next task.
type Source struct {
	store Store
	gen   llm.Generator
	cat   *catalog.Catalog
	lang  string
	intn  func(n int) int
}

// New creates a Source. lang selects the language generated tasks are written in.
func New(store Store, gen llm.Generator, cat *catalog.Catalog, lang string) *Source {
	return &Source{store: store, gen: gen, cat: cat, lang: lang, intn: rand.IntN}
}

// Route decides where a task for sel comes from: tests and basic practice
// use the local bank, everything else is generated.
func Route(sel model.Selection) model.Source {
	switch {
	case sel.TaskType == model.TaskTest:
		return model.SourceLocal
	case sel.TaskType == model.TaskPractice && sel.Difficulty == model.DifficultyBasic:
		return model.SourceLocal
	default:
		return model.SourceAI
	}
}

// Next returns a task for sel. Local routes fall back to generation when the
// bank has nothing for the selection. Generated tasks are stored before they are returned.
func (s *Source) Next(ctx context.Context, sel model.Selection) (model.Question, error) {
	if Route(sel) == model.SourceLocal {
		q, err := s.pickLocal(ctx, sel)
		if err == nil {
			return q, nil
		}
		if !errors.Is(err, errBankEmpty) {
			return model.Question{}, err
		}
		slog.InfoContext(ctx, "no local questions, generating",
			"exam", sel.Exam, "subject", sel.Subject, "difficulty", sel.Difficulty, "task_type", sel.TaskType)
	}
	return s.generate(ctx, sel)
}

var errBankEmpty = errors.New("no local questions for selection")

func (s *Source) pickLocal(ctx context.Context, sel model.Selection) (model.Question, error) {
	ids, err := s.store.ListQuestionIDs(ctx, model.QuestionFilter{
		Exam:       sel.Exam,
		Subject:    sel.Subject,
		Difficulty: sel.Difficulty,
		TaskType:   sel.TaskType,
		Source:     model.SourceLocal,
	})
	if err != nil {
		return model.Question{}, fmt.Errorf("list local questions: %w", err)
	}
	if len(ids) == 0 {
		return model.Question{}, errBankEmpty
	}
	q, err := s.store.GetQuestion(ctx, ids[s.intn(len(ids))])
	if err != nil {
		return model.Question{}, fmt.Errorf("load local question: %w", err)
	}
	return q, nil
}

func (s *Source) generate(ctx context.Context, sel model.Selection) (model.Question, error) {
	prompt, err := prompts.BuildQuestionPrompt(sel.TaskType, s.lang, prompts.QuestionData{
		Exam:       s.cat.ExamLabel(sel.Exam),
		Subject:    sel.Subject,
		Difficulty: s.cat.DifficultyLabel(sel.Difficulty),
		TaskType:   s.cat.TaskTypeLabel(sel.TaskType),
	})
	if err != nil {
		return model.Question{}, fmt.Errorf("build question prompt: %w", err)
	}

	text, err := s.gen.Generate(ctx, llm.Request{Prompt: prompt, MaxTokens: 600, Temperature: 0.8})
	if err != nil {
		return model.Question{}, fmt.Errorf("generate question: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Question{}, fmt.Errorf("generate question: %w", llm.ErrEmptyResponse)
	}

	q := model.Question{
		Exam:       sel.Exam,
		Subject:    sel.Subject,
		Difficulty: sel.Difficulty,
		TaskType:   sel.TaskType,
		Text:       text,
		Source:     model.SourceAI,
	}
	q.ID, err = s.store.InsertQuestion(ctx, q)
	if err != nil {
		return model.Question{}, fmt.Errorf("store generated question: %w", err)
	}
	return q, nil
}
