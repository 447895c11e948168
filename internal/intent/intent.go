// Package intent classifies free-form user input into device commands using
// an ordered keyword rule table.
package intent

import "strings"

// Command is a classified command ready for dispatch.
type Command struct {
	Action      Action
	Rule        string
	App         App
	Argument    string
	HasArgument bool
	Input       string // normalized input the command was matched against
}

// Result is the outcome of Classify. Command is only meaningful when Matched.
type Result struct {
	Matched bool
	Command Command
}

// Unmatched is returned when no rule applies.
var Unmatched = Result{}

// Matcher evaluates a rule table in order. It is immutable and safe for
// concurrent use.
type Matcher struct {
	rules []Rule
}

// NewMatcher returns a Matcher over rules. A nil table means DefaultRules.
func NewMatcher(rules []Rule) *Matcher {
	if rules == nil {
		rules = DefaultRules()
	}
	cp := make([]Rule, len(rules))
	copy(cp, rules)
	return &Matcher{rules: cp}
}

// Rules returns a copy of the rule table in evaluation order.
func (m *Matcher) Rules() []Rule {
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	return out
}

// Normalize lower-cases the input. Surrounding whitespace is trimmed.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Classify returns the command of the first rule matching raw.
func (m *Matcher) Classify(raw string) Result {
	input := Normalize(raw)
	if input == "" {
		return Unmatched
	}
	for _, r := range m.rules {
		if !r.matches(input) {
			continue
		}
		cmd := Command{Action: r.Action, Rule: r.Name, Input: input}
		if r.App != "" {
			cmd.App, _ = LookupApp(r.App)
			cmd.Argument, cmd.HasArgument = r.App, true
		}
		if r.Extract != nil {
			cmd.Argument, cmd.HasArgument = r.Extract(input)
		}
		return Result{Matched: true, Command: cmd}
	}
	return Unmatched
}

func (r Rule) matches(input string) bool {
	if !containsAny(input, r.Keywords) {
		return false
	}
	return len(r.Require) == 0 || containsAny(input, r.Require)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
