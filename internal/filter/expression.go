package filter

import (
	"strings"

	"github.com/rpattn/tradeboard/internal/domain"
)

// Expression is a parsed text filter: OR-separated groups of AND-separated terms.
type Expression struct {
	groups [][]string
}

// ParseExpression lower-cases the input and splits it on the whole-word
// keywords "or" and "and". Keywords embedded in longer words ("grand",
// "color") stay part of their term. Empty groups and terms are dropped.
func ParseExpression(text string) Expression {
	tokens := strings.Fields(strings.ToLower(text))
	var (
		groups [][]string
		group  []string
		term   []string
	)
	flushTerm := func() {
		if len(term) > 0 {
			group = append(group, strings.Join(term, " "))
			term = nil
		}
	}
	flushGroup := func() {
		flushTerm()
		if len(group) > 0 {
			groups = append(groups, group)
			group = nil
		}
	}
	for _, token := range tokens {
		switch token {
		case domain.KeywordOr:
			flushGroup()
		case domain.KeywordAnd:
			flushTerm()
		default:
			term = append(term, token)
		}
	}
	flushGroup()
	return Expression{groups: groups}
}

// Empty reports whether the expression imposes no constraint.
func (e Expression) Empty() bool {
	return len(e.groups) == 0
}

// Groups returns a copy of the parsed OR groups.
func (e Expression) Groups() [][]string {
	out := make([][]string, len(e.groups))
	for i, group := range e.groups {
		out[i] = append([]string(nil), group...)
	}
	return out
}

// Match reports whether some OR group has every AND term as a substring of value.
// Matching is case-insensitive. An empty expression matches everything.
func (e Expression) Match(value string) bool {
	if e.Empty() {
		return true
	}
	value = strings.ToLower(value)
	for _, group := range e.groups {
		if matchesAll(value, group) {
			return true
		}
	}
	return false
}

func matchesAll(value string, terms []string) bool {
	for _, term := range terms {
		if !strings.Contains(value, term) {
			return false
		}
	}
	return true
}

// String renders the expression back in canonical form.
func (e Expression) String() string {
	parts := make([]string, len(e.groups))
	for i, group := range e.groups {
		parts[i] = strings.Join(group, " and ")
	}
	return strings.Join(parts, " or ")
}
