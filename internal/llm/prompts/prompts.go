// Package prompts renders the task-generation and answer-judging prompts.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/exambot/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

const maxAnswerRunes = 4000

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// PromptVariant represents a judging prompt variant.
type PromptVariant string

const (
	// PromptStrict never credits reasoning the student did not write.
	PromptStrict PromptVariant = "strict"
	// PromptStandard tolerates minor wording issues.
	PromptStandard PromptVariant = "standard"
	// PromptLenient credits the key idea.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

var taskHints = map[model.TaskType]string{
	model.TaskTheory:         "Ask a theory question that checks understanding of one concept.",
	model.TaskPractice:       "Give a problem that needs a short worked solution.",
	model.TaskTest:           "Give a multiple-choice question with four options labeled A, B, C and D, exactly one of them correct.",
	model.TaskExtendedAnswer: "Ask a question that needs a detailed, reasoned answer of several sentences.",
}

var languages = map[string]string{
	"en": "English",
	"ru": "Russian",
}

var (
	loadOnce       sync.Once
	loadErr        error
	questionTmpl   *template.Template
	judgeTemplates map[PromptVariant]*template.Template
)

// QuestionData holds template data for the task-generation prompt.
// Labels are display names, not enum ids.
type QuestionData struct {
	Exam       string
	Subject    string
	Difficulty string
	TaskType   string
	TaskHint   string
	Language   string
}

// JudgeData holds template data for the judging prompt.
type JudgeData struct {
	Exam       string
	Subject    string
	Difficulty string
	TaskType   string
	Question   string
	Answer     string
	Language   string
}

// Load parses the embedded templates. It is safe to call more than once.
func Load() error {
	loadOnce.Do(func() {
		questionTmpl, loadErr = parse("question")
		if loadErr != nil {
			return
		}
		judgeTemplates = make(map[PromptVariant]*template.Template)
		for _, v := range []PromptVariant{PromptStrict, PromptStandard, PromptLenient} {
			tmpl, err := parse("judge_" + string(v))
			if err != nil {
				loadErr = err
				return
			}
			judgeTemplates[v] = tmpl
		}
	})
	return loadErr
}

func parse(name string) (*template.Template, error) {
	file := "templates/" + name + ".txt"
	content, err := templateFS.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read prompt file %s: %w", file, err)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", file, err)
	}
	return tmpl, nil
}

// BuildQuestionPrompt builds the task-generation prompt.
func BuildQuestionPrompt(taskType model.TaskType, lang string, data QuestionData) (string, error) {
	if err := Load(); err != nil {
		return "", err
	}
	data.TaskHint = taskHints[taskType]
	data.Language = languageName(lang)
	return execute(questionTmpl, data)
}

// BuildJudgePrompt builds the judging prompt using the specified variant.
func BuildJudgePrompt(variant PromptVariant, lang string, data JudgeData) (string, error) {
	if err := Load(); err != nil {
		return "", err
	}
	tmpl, ok := judgeTemplates[variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}
	data.Answer = sanitizeAnswer(data.Answer)
	data.Language = languageName(lang)
	return execute(tmpl, data)
}

func execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func languageName(lang string) string {
	if name, ok := languages[lang]; ok {
		return name
	}
	return languages["en"]
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
