package questions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pavelanni/exambot/internal/catalog"
	"github.com/pavelanni/exambot/internal/model"
)

// ImportStore is the part of the persistence layer the importer needs.
type ImportStore interface {
	InsertQuestion(ctx context.Context, q model.Question) (int64, error)
	GetImportedFileHash(ctx context.Context, path string) (string, error)
	SetImportedFileHash(ctx context.Context, path, hash string) error
}

// ImportResult reports what happened to one file.
type ImportResult struct {
	Path     string
	Imported int
	Skipped  bool
}

// Importer loads local question bank files into the store.
type Importer struct {
	store ImportStore
	cat   *catalog.Catalog
}

// NewImporter creates an Importer that validates entries against cat.
func NewImporter(store ImportStore, cat *catalog.Catalog) *Importer {
	return &Importer{store: store, cat: cat}
}

// Import loads every file in paths. A file whose content is unchanged since the
// last import is skipped; a file that changed is skipped with a warning so the
// ids referenced by sessions and the answer log stay valid.
func (im *Importer) Import(ctx context.Context, paths []string) ([]ImportResult, error) {
	var results []ImportResult
	for _, path := range paths {
		res, err := im.importFile(ctx, path)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (im *Importer) importFile(ctx context.Context, path string) (ImportResult, error) {
	res := ImportResult{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", path, err)
	}

	hash := sha256sum(data)
	storedHash, err := im.store.GetImportedFileHash(ctx, path)
	if err != nil {
		return res, fmt.Errorf("check import status for %s: %w", path, err)
	}
	if storedHash == hash {
		slog.Info("questions file unchanged, skipping", "path", path)
		res.Skipped = true
		return res, nil
	}
	if storedHash != "" {
		slog.Warn("questions file changed since last import, skipping to keep existing question ids",
			"path", path)
		res.Skipped = true
		return res, nil
	}

	var entries []model.QuestionImport
	if err := json.Unmarshal(data, &entries); err != nil {
		return res, fmt.Errorf("parse %s: %w", path, err)
	}

	var errs []error
	for i := range entries {
		if err := im.normalize(&entries[i]); err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return res, fmt.Errorf("validate %s: %w", path, err)
	}

	for _, qi := range entries {
		_, err := im.store.InsertQuestion(ctx, model.Question{
			Exam:       qi.Exam,
			Subject:    qi.Subject,
			Difficulty: qi.Difficulty,
			TaskType:   qi.TaskType,
			Text:       qi.Text,
			Source:     model.SourceLocal,
		})
		if err != nil {
			return res, fmt.Errorf("insert question from %s: %w", path, err)
		}
		res.Imported++
	}

	if err := im.store.SetImportedFileHash(ctx, path, hash); err != nil {
		return res, fmt.Errorf("record import for %s: %w", path, err)
	}
	slog.Info("imported questions", "path", path, "count", res.Imported)
	return res, nil
}

// normalize checks an entry against the catalog and rewrites the subject
// to its canonical spelling.
func (im *Importer) normalize(qi *model.QuestionImport) error {
	if qi.Exam != model.ExamA && qi.Exam != model.ExamB {
		return fmt.Errorf("unknown exam %q", qi.Exam)
	}
	subject, ok := im.cat.MatchSubject(qi.Exam, catalog.Normalize(qi.Subject))
	if !ok {
		return fmt.Errorf("subject %q is not offered for %s", qi.Subject, qi.Exam)
	}
	qi.Subject = subject
	switch qi.Difficulty {
	case model.DifficultyBasic, model.DifficultyMedium, model.DifficultyAdvanced:
	default:
		return fmt.Errorf("unknown difficulty %q", qi.Difficulty)
	}
	switch qi.TaskType {
	case model.TaskTheory, model.TaskPractice, model.TaskTest, model.TaskExtendedAnswer:
	default:
		return fmt.Errorf("unknown task type %q", qi.TaskType)
	}
	qi.Text = strings.TrimSpace(qi.Text)
	if qi.Text == "" {
		return errors.New("empty text")
	}
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
