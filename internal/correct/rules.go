package correct

import "strings"

// RuleTable holds literal replacement rules for recurrent OCR confusions.
// Rules are applied in insertion order so later rules see earlier fixes.
type RuleTable struct {
	order []string
	rules map[string]string
}

// NewRuleTable creates an empty rule table.
func NewRuleTable() *RuleTable {
	return &RuleTable{rules: make(map[string]string)}
}

// DefaultRuleTable returns the built-in confusion rules: shapes Korean OCR
// engines commonly misread on low-quality scans.
func DefaultRuleTable() *RuleTable {
	t := NewRuleTable()
	t.Add("0l", "이")
	t.Add("9l", "의")
	t.Add("ㅁl", "미")
	t.Add("ㅇl", "이")
	t.Add("#", "")
	t.Add("|", "l")
	return t
}

// Add registers a rule, replacing an existing rule for the same pattern.
func (t *RuleTable) Add(from, to string) {
	if _, ok := t.rules[from]; !ok {
		t.order = append(t.order, from)
	}
	t.rules[from] = to
}

// Apply runs every rule over the text and reports how many replacements
// were made.
func (t *RuleTable) Apply(text string) (string, int) {
	changes := 0
	for _, from := range t.order {
		to := t.rules[from]
		n := strings.Count(text, from)
		if n == 0 {
			continue
		}
		text = strings.ReplaceAll(text, from, to)
		changes += n
	}
	return text, changes
}

// Len reports the number of registered rules.
func (t *RuleTable) Len() int { return len(t.order) }
