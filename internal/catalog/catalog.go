// Package catalog holds the configurable labels the bot matches user text against:
// exams and their subject lists, difficulty and task type labels, command keywords,
// give-up phrases and minimum answer lengths.
package catalog

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/pavelanni/exambot/internal/model"
)

//go:embed defaults/*.yaml
var defaultsFS embed.FS

// Choice is a selectable menu value with its button label and accepted aliases.
type Choice struct {
	ID      string   `mapstructure:"id"`
	Label   string   `mapstructure:"label"`
	Aliases []string `mapstructure:"aliases"`
}

// Exam is an exam track with its own subject list.
type Exam struct {
	ID       model.Exam `mapstructure:"id"`
	Label    string     `mapstructure:"label"`
	Aliases  []string   `mapstructure:"aliases"`
	Subjects []string   `mapstructure:"subjects"`
}

// Command is a keyword command. Label is shown on buttons.
type Command struct {
	Label   string   `mapstructure:"label"`
	Aliases []string `mapstructure:"aliases"`
}

// Commands lists every keyword command the bot understands.
type Commands struct {
	Greeting        Command `mapstructure:"greeting"`
	Help            Command `mapstructure:"help"`
	Stats           Command `mapstructure:"stats"`
	ResetExam       Command `mapstructure:"reset_exam"`
	ResetSubject    Command `mapstructure:"reset_subject"`
	ResetDifficulty Command `mapstructure:"reset_difficulty"`
	Start           Command `mapstructure:"start"`
}

// LengthRule is the minimum answer length for a task type, in characters.
type LengthRule struct {
	TaskType model.TaskType `mapstructure:"task_type"`
	Min      int            `mapstructure:"min"`
}

// Catalog is the full label configuration.
type Catalog struct {
	Exams           []Exam       `mapstructure:"exams"`
	Difficulties    []Choice     `mapstructure:"difficulties"`
	TaskTypes       []Choice     `mapstructure:"task_types"`
	Commands        Commands     `mapstructure:"commands"`
	GiveUpPhrases   []string     `mapstructure:"give_up_phrases"`
	MinAnswerLength []LengthRule `mapstructure:"min_answer_length"`

	giveUp map[string]bool
}

// Default returns the embedded catalog for lang, falling back to English.
func Default(lang string) (*Catalog, error) {
	data, err := defaultsFS.ReadFile("defaults/" + lang + ".yaml")
	if err != nil {
		data, err = defaultsFS.ReadFile("defaults/en.yaml")
		if err != nil {
			return nil, fmt.Errorf("read default catalog: %w", err)
		}
	}
	return Parse(data, "yaml")
}

// Load reads a catalog from a YAML, JSON or TOML file.
func Load(path string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return decode(v)
}

// Parse decodes catalog data in the given format ("yaml", "json", "toml").
func Parse(data []byte, format string) (*Catalog, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Catalog, error) {
	var c Catalog
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.giveUp = make(map[string]bool, len(c.GiveUpPhrases))
	for _, p := range c.GiveUpPhrases {
		c.giveUp[Normalize(p)] = true
	}
	return &c, nil
}

// Validate checks that every enum value has exactly one label and that no
// label, alias, subject or give-up phrase normalizes to text owned by another entry.
func (c *Catalog) Validate() error {
	var errs []error

	examIDs := map[model.Exam]bool{}
	for _, e := range c.Exams {
		if e.ID != model.ExamA && e.ID != model.ExamB {
			errs = append(errs, fmt.Errorf("unknown exam id %q", e.ID))
		}
		if examIDs[e.ID] {
			errs = append(errs, fmt.Errorf("duplicate exam id %q", e.ID))
		}
		examIDs[e.ID] = true
		if len(e.Subjects) == 0 {
			errs = append(errs, fmt.Errorf("exam %q has no subjects", e.ID))
		}
		if dup := firstDuplicate(e.Subjects); dup != "" {
			errs = append(errs, fmt.Errorf("exam %q: duplicate subject %q", e.ID, dup))
		}
	}
	if len(c.Exams) != 2 {
		errs = append(errs, fmt.Errorf("expected 2 exams, got %d", len(c.Exams)))
	}

	errs = append(errs, checkChoices("difficulty", c.Difficulties, []string{
		string(model.DifficultyBasic), string(model.DifficultyMedium), string(model.DifficultyAdvanced),
	})...)
	errs = append(errs, checkChoices("task type", c.TaskTypes, []string{
		string(model.TaskTheory), string(model.TaskPractice), string(model.TaskTest), string(model.TaskExtendedAnswer),
	})...)

	for name, cmd := range c.commandsByName() {
		if cmd.Label == "" {
			errs = append(errs, fmt.Errorf("command %s has no label", name))
		}
	}

	// Every label and alias that can trigger a command or a top-level choice.
	owners := map[string]string{}
	claim := func(owner string, texts ...string) {
		for _, t := range texts {
			n := Normalize(t)
			if n == "" {
				continue
			}
			if prev, ok := owners[n]; ok && prev != owner {
				errs = append(errs, fmt.Errorf("%q is used by both %s and %s", t, prev, owner))
				continue
			}
			owners[n] = owner
		}
	}
	for name, cmd := range c.commandsByName() {
		claim("command "+name, append([]string{cmd.Label}, cmd.Aliases...)...)
	}
	for _, e := range c.Exams {
		claim("exam "+string(e.ID), append([]string{e.Label}, e.Aliases...)...)
	}
	for _, d := range c.Difficulties {
		claim("difficulty "+d.ID, append([]string{d.Label}, d.Aliases...)...)
	}
	for _, t := range c.TaskTypes {
		claim("task type "+t.ID, append([]string{t.Label}, t.Aliases...)...)
	}

	for _, e := range c.Exams {
		for _, subj := range e.Subjects {
			if owner, ok := owners[Normalize(subj)]; ok {
				errs = append(errs, fmt.Errorf("exam %q: subject %q is shadowed by %s", e.ID, subj, owner))
			}
		}
	}
	for _, p := range c.GiveUpPhrases {
		if owner, ok := owners[Normalize(p)]; ok {
			errs = append(errs, fmt.Errorf("give-up phrase %q is shadowed by %s", p, owner))
		}
	}

	return errors.Join(errs...)
}

func (c *Catalog) commandsByName() map[string]Command {
	return map[string]Command{
		"greeting":         c.Commands.Greeting,
		"help":             c.Commands.Help,
		"stats":            c.Commands.Stats,
		"reset_exam":       c.Commands.ResetExam,
		"reset_subject":    c.Commands.ResetSubject,
		"reset_difficulty": c.Commands.ResetDifficulty,
		"start":            c.Commands.Start,
	}
}

func checkChoices(kind string, choices []Choice, want []string) []error {
	var errs []error
	seen := map[string]bool{}
	for _, ch := range choices {
		seen[ch.ID] = true
		if ch.Label == "" {
			errs = append(errs, fmt.Errorf("%s %q has no label", kind, ch.ID))
		}
	}
	for _, id := range want {
		if !seen[id] {
			errs = append(errs, fmt.Errorf("missing %s %q", kind, id))
		}
	}
	if len(choices) != len(want) {
		errs = append(errs, fmt.Errorf("expected %d %s entries, got %d", len(want), kind, len(choices)))
	}
	return errs
}

func firstDuplicate(values []string) string {
	seen := map[string]bool{}
	for _, v := range values {
		n := Normalize(v)
		if seen[n] {
			return v
		}
		seen[n] = true
	}
	return ""
}

func matches(norm, label string, aliases []string) bool {
	if norm == "" {
		return false
	}
	if Normalize(label) == norm {
		return true
	}
	for _, a := range aliases {
		if Normalize(a) == norm {
			return true
		}
	}
	return false
}

// Is reports whether normalized text triggers cmd.
func (c *Catalog) Is(cmd Command, norm string) bool {
	return matches(norm, cmd.Label, cmd.Aliases)
}

// MatchExam returns the exam whose label or alias equals norm.
func (c *Catalog) MatchExam(norm string) (model.Exam, bool) {
	for _, e := range c.Exams {
		if matches(norm, e.Label, e.Aliases) {
			return e.ID, true
		}
	}
	return "", false
}

// MatchSubject returns the canonical subject name from the given exam's list.
func (c *Catalog) MatchSubject(exam model.Exam, norm string) (string, bool) {
	e, ok := c.exam(exam)
	if !ok {
		return "", false
	}
	for _, s := range e.Subjects {
		if Normalize(s) == norm {
			return s, true
		}
	}
	return "", false
}

// HasSubject reports whether subject belongs to exam's list.
func (c *Catalog) HasSubject(exam model.Exam, subject string) bool {
	_, ok := c.MatchSubject(exam, Normalize(subject))
	return ok
}

// MatchDifficulty returns the difficulty whose label or alias equals norm.
func (c *Catalog) MatchDifficulty(norm string) (model.Difficulty, bool) {
	for _, d := range c.Difficulties {
		if matches(norm, d.Label, d.Aliases) {
			return model.Difficulty(d.ID), true
		}
	}
	return "", false
}

// MatchTaskType returns the task type whose label or alias equals norm.
func (c *Catalog) MatchTaskType(norm string) (model.TaskType, bool) {
	for _, t := range c.TaskTypes {
		if matches(norm, t.Label, t.Aliases) {
			return model.TaskType(t.ID), true
		}
	}
	return "", false
}

// IsGiveUp reports whether norm is one of the "giving up" phrases.
func (c *Catalog) IsGiveUp(norm string) bool {
	return c.giveUp[norm]
}

// MinLength returns the minimum answer length for a task type (0 = no limit).
func (c *Catalog) MinLength(t model.TaskType) int {
	for _, r := range c.MinAnswerLength {
		if r.TaskType == t {
			return r.Min
		}
	}
	return 0
}

// Subjects returns the subject list of an exam.
func (c *Catalog) Subjects(exam model.Exam) []string {
	e, _ := c.exam(exam)
	return e.Subjects
}

// ExamLabel returns the display label of an exam.
func (c *Catalog) ExamLabel(id model.Exam) string {
	if e, ok := c.exam(id); ok {
		return e.Label
	}
	return string(id)
}

// DifficultyLabel returns the display label of a difficulty.
func (c *Catalog) DifficultyLabel(id model.Difficulty) string {
	return choiceLabel(c.Difficulties, string(id))
}

// TaskTypeLabel returns the display label of a task type.
func (c *Catalog) TaskTypeLabel(id model.TaskType) string {
	return choiceLabel(c.TaskTypes, string(id))
}

func choiceLabel(choices []Choice, id string) string {
	for _, ch := range choices {
		if ch.ID == id {
			return ch.Label
		}
	}
	return strings.ToLower(id)
}

func (c *Catalog) exam(id model.Exam) (Exam, bool) {
	for _, e := range c.Exams {
		if e.ID == id {
			return e, true
		}
	}
	return Exam{}, false
}
