package metrics

import "strings"

// Category classifies a statement row for metric purposes.
type Category int

const (
	// CategoryRevenue rows feed the revenue series.
	CategoryRevenue Category = iota
	// CategoryExcluded rows are deliberately left out of EBITDA: financing,
	// tax, non-cash charges, and subtotal lines.
	CategoryExcluded
	// CategoryOperational is the default for every other expense line.
	CategoryOperational
)

func (c Category) String() string {
	switch c {
	case CategoryRevenue:
		return "revenue"
	case CategoryExcluded:
		return "excluded"
	case CategoryOperational:
		return "operational"
	default:
		return "unknown"
	}
}

// Rule maps a label substring to a category. Rules are data, not branching
// control flow: the table is evaluated in order and the first match wins,
// which is how "Total Income" lands on revenue while a bare "Total" subtotal
// stays excluded.
type Rule struct {
	Pattern  string
	Category Category
}

// DefaultRules returns the ordered classification table used by the engine.
func DefaultRules() []Rule {
	return []Rule{
		{"total income", CategoryRevenue},
		{"gross receipts", CategoryRevenue},
		{"gross sales", CategoryRevenue},
		// Tax lines before the broad revenue patterns so "Sales Tax" never
		// classifies as revenue.
		{"sales tax", CategoryExcluded},
		{"income tax", CategoryExcluded},
		{"corporate tax", CategoryExcluded},
		{"sales", CategoryRevenue},
		{"revenue", CategoryRevenue},
		{"interest", CategoryExcluded},
		{"depreciation", CategoryExcluded},
		{"amortization", CategoryExcluded},
		{"net income", CategoryExcluded},
		{"net operating", CategoryExcluded},
		{"subtotal", CategoryExcluded},
		{"total", CategoryExcluded},
	}
}

// RulesFor prepends configured pattern overrides to the default table.
// Overrides are evaluated first, exclusions before revenue, so a configured
// exclusion always beats a broader revenue pattern.
func RulesFor(revenue, exclude []string) []Rule {
	defaults := DefaultRules()
	rules := make([]Rule, 0, len(revenue)+len(exclude)+len(defaults))
	for _, p := range exclude {
		rules = append(rules, Rule{strings.ToLower(strings.TrimSpace(p)), CategoryExcluded})
	}
	for _, p := range revenue {
		rules = append(rules, Rule{strings.ToLower(strings.TrimSpace(p)), CategoryRevenue})
	}
	return append(rules, defaults...)
}

// Classify returns the category for a statement row label using the first
// matching rule, defaulting to operational expense.
func Classify(label string, rules []Rule) Category {
	l := strings.ToLower(strings.TrimSpace(label))
	for _, r := range rules {
		if strings.Contains(l, r.Pattern) {
			return r.Category
		}
	}
	return CategoryOperational
}
