// Package filter implements the comma-separated include/exclude pattern
// language used to narrow down relays by location, hostname or provider.
//
// A filter is a list of clauses that must all hold. A clause starting with
// "!" requires its pattern NOT to match; "\!" escapes a literal leading bang.
// Every other clause requires its pattern to match.
//
//	"se-,!got"     -> matches "se-sto", rejects "se-got"
//	"\!weird"      -> matches subjects containing "!weird"
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidPattern is returned when a clause is not a valid regular expression.
var ErrInvalidPattern = errors.New("invalid filter pattern")

const (
	separator     = ","
	negateMarker  = "!"
	escapedMarker = `\!`
)

// Polarity tells whether a clause requires a match or a non-match.
type Polarity int

const (
	// Positive clauses require the pattern to match.
	Positive Polarity = iota
	// Negative clauses require the pattern not to match.
	Negative
)

func (p Polarity) String() string {
	switch p {
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	default:
		return "unknown"
	}
}

// Clause is one compiled pattern test.
type Clause struct {
	Polarity Polarity
	Pattern  *regexp.Regexp
}

// Holds reports whether subject satisfies the clause.
func (c Clause) Holds(subject string) bool {
	return c.Pattern.MatchString(subject) == (c.Polarity == Positive)
}

func (c Clause) String() string {
	src := c.Pattern.String()
	if c.Polarity == Negative {
		return negateMarker + src
	}
	if strings.HasPrefix(src, negateMarker) {
		return `\` + src
	}
	return src
}

// Filter is an ordered conjunction of clauses. The zero value matches
// everything.
type Filter struct {
	clauses []Clause
}

// Compile parses text into a Filter. Empty text yields an empty filter.
func Compile(text string) (*Filter, error) {
	f := &Filter{}
	if text == "" {
		return f, nil
	}
	for _, raw := range strings.Split(text, separator) {
		polarity, src := splitClause(raw)
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, raw, err)
		}
		f.clauses = append(f.clauses, Clause{Polarity: polarity, Pattern: re})
	}
	return f, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(text string) *Filter {
	f, err := Compile(text)
	if err != nil {
		panic(err)
	}
	return f
}

// splitClause strips the polarity marker from a raw clause. An escaped
// marker keeps the literal bang as the first pattern character.
func splitClause(raw string) (Polarity, string) {
	switch {
	case strings.HasPrefix(raw, escapedMarker):
		return Positive, strings.TrimPrefix(raw, `\`)
	case strings.HasPrefix(raw, negateMarker):
		return Negative, strings.TrimPrefix(raw, negateMarker)
	default:
		return Positive, raw
	}
}

// Match reports whether every clause holds for subject. Clauses are
// evaluated in declaration order and evaluation stops at the first failure.
func (f *Filter) Match(subject string) bool {
	if f == nil {
		return true
	}
	for _, c := range f.clauses {
		if !c.Holds(subject) {
			return false
		}
	}
	return true
}

// MatchAny reports whether at least one of the subjects satisfies the filter.
func (f *Filter) MatchAny(subjects ...string) bool {
	for _, s := range subjects {
		if f.Match(s) {
			return true
		}
	}
	return false
}

// Clauses returns a copy of the compiled clauses.
func (f *Filter) Clauses() []Clause {
	if f == nil {
		return nil
	}
	return append([]Clause(nil), f.clauses...)
}

// Empty reports whether the filter has no clauses.
func (f *Filter) Empty() bool {
	return f == nil || len(f.clauses) == 0
}

// String renders the filter back into its textual form.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	parts := make([]string, len(f.clauses))
	for i, c := range f.clauses {
		parts[i] = c.String()
	}
	return strings.Join(parts, separator)
}
