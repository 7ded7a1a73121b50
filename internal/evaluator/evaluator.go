// Package evaluator decides whether a free-text answer is accepted for checking
// and asks the language model to judge it.
package evaluator

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pavelanni/exambot/internal/catalog"
	"github.com/pavelanni/exambot/internal/llm"
	"github.com/pavelanni/exambot/internal/llm/prompts"
	"github.com/pavelanni/exambot/internal/model"
)

// Rejection is the outcome of the pre-checks run before the judge.
type Rejection int

const (
	RejectNone Rejection = iota
	RejectGiveUp
	RejectTooShort
)

func (r Rejection) String() string {
	switch r {
	case RejectGiveUp:
		return "give_up"
	case RejectTooShort:
		return "too_short"
	default:
		return "none"
	}
}

// Verdict is the judge's decision on one answer.
type Verdict struct {
	Correct     bool
	Explanation string
}

// Evaluator checks answers against the catalog policy and an LLM judge.
type Evaluator struct {
	gen     llm.Generator
	cat     *catalog.Catalog
	variant prompts.PromptVariant
	lang    string
}

// New creates an Evaluator. An invalid variant falls back to strict.
func New(gen llm.Generator, cat *catalog.Catalog, variant, lang string) *Evaluator {
	v := prompts.PromptVariant(variant)
	if !prompts.IsValidVariant(variant) {
		v = prompts.PromptStrict
	}
	return &Evaluator{gen: gen, cat: cat, variant: v, lang: lang}
}

// Precheck rejects give-up phrases and answers shorter than the task type's minimum.
// Length is counted in characters of the trimmed answer.
func (e *Evaluator) Precheck(answer string, taskType model.TaskType) Rejection {
	norm := strings.TrimRight(catalog.Normalize(answer), ".!?… ")
	if e.cat.IsGiveUp(norm) {
		return RejectGiveUp
	}
	if min := e.cat.MinLength(taskType); min > 0 && utf8.RuneCountInString(strings.TrimSpace(answer)) < min {
		return RejectTooShort
	}
	return RejectNone
}

// Evaluate asks the judge whether answer solves question.
func (e *Evaluator) Evaluate(ctx context.Context, sel model.Selection, question, answer string) (Verdict, error) {
	prompt, err := prompts.BuildJudgePrompt(e.variant, e.lang, prompts.JudgeData{
		Exam:       e.cat.ExamLabel(sel.Exam),
		Subject:    sel.Subject,
		Difficulty: e.cat.DifficultyLabel(sel.Difficulty),
		TaskType:   e.cat.TaskTypeLabel(sel.TaskType),
		Question:   question,
		Answer:     answer,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("build judge prompt: %w", err)
	}

	raw, err := e.gen.Generate(ctx, llm.Request{Prompt: prompt, MaxTokens: 400})
	if err != nil {
		return Verdict{}, fmt.Errorf("judge answer: %w", err)
	}
	return ParseVerdict(raw), nil
}
