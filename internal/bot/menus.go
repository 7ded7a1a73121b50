package bot

import (
	"github.com/pavelanni/exambot/internal/catalog"
	"github.com/pavelanni/exambot/internal/model"
)

const subjectsPerRow = 2

// Menus builds the keyboard shown in each state.
type Menus struct {
	cat *catalog.Catalog
}

// NewMenus creates menus whose labels come from cat.
func NewMenus(cat *catalog.Catalog) *Menus {
	return &Menus{cat: cat}
}

func (m *Menus) btn(label string, style model.ButtonStyle) model.Button {
	return model.Button{Label: label, Style: style}
}

// For returns the menu for state. exam selects the subject list.
func (m *Menus) For(state State, exam model.Exam) *model.Menu {
	c := m.cat.Commands
	switch state {
	case StateNeedExam:
		var exams []model.Button
		for _, e := range m.cat.Exams {
			exams = append(exams, m.btn(e.Label, model.StylePrimary))
		}
		return &model.Menu{Rows: [][]model.Button{
			exams,
			{m.btn(c.Stats.Label, model.StyleSecondary), m.btn(c.Help.Label, model.StyleSecondary)},
		}}

	case StateNeedSubject:
		var rows [][]model.Button
		var row []model.Button
		for _, s := range m.cat.Subjects(exam) {
			row = append(row, m.btn(s, model.StylePrimary))
			if len(row) == subjectsPerRow {
				rows = append(rows, row)
				row = nil
			}
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
		rows = append(rows, []model.Button{m.btn(c.ResetExam.Label, model.StyleNegative)})
		return &model.Menu{Rows: rows}

	case StateNeedDifficulty:
		styles := map[string]model.ButtonStyle{
			string(model.DifficultyBasic):    model.StylePositive,
			string(model.DifficultyMedium):   model.StylePrimary,
			string(model.DifficultyAdvanced): model.StyleNegative,
		}
		var diffs []model.Button
		for _, d := range m.cat.Difficulties {
			diffs = append(diffs, m.btn(d.Label, styles[d.ID]))
		}
		return &model.Menu{Rows: [][]model.Button{
			diffs,
			{m.btn(c.ResetSubject.Label, model.StyleSecondary), m.btn(c.ResetExam.Label, model.StyleSecondary)},
		}}

	case StateNeedTaskType:
		var rows [][]model.Button
		var row []model.Button
		for _, t := range m.cat.TaskTypes {
			row = append(row, m.btn(t.Label, model.StylePrimary))
			if len(row) == 2 {
				rows = append(rows, row)
				row = nil
			}
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
		rows = append(rows, []model.Button{
			m.btn(c.ResetDifficulty.Label, model.StyleSecondary),
			m.btn(c.ResetSubject.Label, model.StyleSecondary),
		})
		return &model.Menu{Rows: rows}

	case StateReady:
		return &model.Menu{Rows: [][]model.Button{
			{m.btn(c.Start.Label, model.StylePositive)},
			{m.btn(c.Stats.Label, model.StyleSecondary), m.btn(c.Help.Label, model.StyleSecondary)},
			m.changeRow(),
		}}

	case StateAwaitingAnswer:
		return &model.Menu{Rows: [][]model.Button{
			{m.btn(c.Stats.Label, model.StyleSecondary), m.btn(c.Help.Label, model.StyleSecondary)},
			m.changeRow(),
		}}
	}
	return nil
}

func (m *Menus) changeRow() []model.Button {
	c := m.cat.Commands
	return []model.Button{
		m.btn(c.ResetDifficulty.Label, model.StyleSecondary),
		m.btn(c.ResetSubject.Label, model.StyleSecondary),
		m.btn(c.ResetExam.Label, model.StyleNegative),
	}
}
