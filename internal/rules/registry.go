package rules

import (
	"fmt"

	"github.com/eksup/eksup/internal/models"
)

// Entry is one registered check with its applicability window.
type Entry struct {
	Rule   Rule
	Window Window
}

// Registry is a simple, ordered, in-memory check catalog.
// Checks are evaluated in registration order; the window metadata lives on
// the registry entry, never inside the rule.
// Register panics on duplicate codes to catch wiring mistakes at startup.
type Registry struct {
	entries []Entry
	index   map[string]struct{}
}

// NewRegistry returns an empty registry ready for check registration.
func NewRegistry() *Registry {
	return &Registry{index: make(map[string]struct{})}
}

// Register adds a check with its window. Panics if the code is already taken.
func (r *Registry) Register(rule Rule, window Window) {
	if _, exists := r.index[rule.Code()]; exists {
		panic(fmt.Sprintf("duplicate check code: %q", rule.Code()))
	}
	r.entries = append(r.entries, Entry{Rule: rule, Window: window})
	r.index[rule.Code()] = struct{}{}
}

// Entries returns all registered checks in registration order.
func (r *Registry) Entries() []Entry {
	return r.entries
}

// Applicable returns the checks whose window admits the target minor.
// Retired checks never appear.
func (r *Registry) Applicable(targetMinor int) []Entry {
	var out []Entry
	for _, e := range r.entries {
		if e.Window.Retired() || !e.Window.Admits(targetMinor) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// EvaluateAll runs every applicable check against ctx and merges findings
// into results, grouped by each check's category.
func (r *Registry) EvaluateAll(ctx RuleContext, results *models.Results) {
	for _, e := range r.Applicable(ctx.TargetMinor) {
		results.Append(e.Rule.Category(), e.Rule.Evaluate(ctx)...)
	}
}
