package evaluator

import "strings"

const (
	resultTag      = "RESULT:"
	explanationTag = "EXPLANATION:"

	// Markdown emphasis some models wrap the tags in.
	decoration = " \t*_`"
)

// ParseVerdict reads the judge's two-line reply. Only a RESULT line whose value is
// exactly CORRECT counts as correct; a missing, garbled or repeated verdict is incorrect.
func ParseVerdict(raw string) Verdict {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	var results []string
	explIdx := -1
	for i, line := range lines {
		l := strings.Trim(line, decoration)
		switch {
		case strings.HasPrefix(l, resultTag):
			results = append(results, strings.Trim(strings.TrimPrefix(l, resultTag), decoration))
		case explIdx < 0 && strings.HasPrefix(l, explanationTag):
			explIdx = i
		}
	}

	v := Verdict{Correct: len(results) == 1 && results[0] == "CORRECT"}

	if explIdx >= 0 {
		first := strings.Trim(lines[explIdx], decoration)
		rest := append([]string{strings.Trim(strings.TrimPrefix(first, explanationTag), decoration)}, lines[explIdx+1:]...)
		v.Explanation = strings.TrimSpace(strings.Join(rest, "\n"))
		return v
	}

	var kept []string
	for _, line := range lines {
		if !strings.HasPrefix(strings.Trim(line, decoration), resultTag) {
			kept = append(kept, line)
		}
	}
	v.Explanation = strings.TrimSpace(strings.Join(kept, "\n"))
	return v
}
