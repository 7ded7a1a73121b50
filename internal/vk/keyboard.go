package vk

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/pavelanni/exambot/internal/model"
)

// VK limits for non-inline keyboards.
const (
	maxRows        = 10
	maxButtonsRow  = 5
	maxLabelLength = 40
)

type keyboard struct {
	OneTime bool       `json:"one_time"`
	Buttons [][]button `json:"buttons"`
}

type button struct {
	Action action `json:"action"`
	Color  string `json:"color"`
}

type action struct {
	Type  string `json:"type"`
	Label string `json:"label"`
}

// Keyboard renders menu as VK keyboard JSON. A nil menu yields an empty
// keyboard, which hides the previous one.
func Keyboard(menu *model.Menu) (string, error) {
	kb := keyboard{Buttons: [][]button{}}
	if menu != nil {
		for _, row := range menu.Rows {
			if len(kb.Buttons) == maxRows {
				break
			}
			// Long rows are split to respect the per-row limit.
			for start := 0; start < len(row); start += maxButtonsRow {
				end := min(start+maxButtonsRow, len(row))
				var out []button
				for _, b := range row[start:end] {
					out = append(out, button{
						Action: action{Type: "text", Label: truncate(b.Label)},
						Color:  color(b.Style),
					})
				}
				if len(kb.Buttons) < maxRows {
					kb.Buttons = append(kb.Buttons, out)
				}
			}
		}
	}
	data, err := json.Marshal(kb)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func color(s model.ButtonStyle) string {
	switch s {
	case model.StylePrimary, model.StylePositive, model.StyleNegative:
		return string(s)
	default:
		return string(model.StyleSecondary)
	}
}

func truncate(label string) string {
	if utf8.RuneCountInString(label) <= maxLabelLength {
		return label
	}
	return string([]rune(label)[:maxLabelLength])
}
