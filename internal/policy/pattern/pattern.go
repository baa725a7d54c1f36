// Package pattern matches executable names and paths against user supplied
// patterns. Supports glob patterns, regex patterns (re: prefix) and literals.
// Matching is always case-insensitive: Windows executable names are, and the
// overlay configuration stores everything folded to lowercase.
package pattern

import (
	"fmt"
	"regexp"
	"regexp/syntax"
	"strings"

	"github.com/gobwas/glob"
)

// Kind indicates how a pattern is matched.
type Kind int

const (
	// KindLiteral is an exact (case-folded) string match.
	KindLiteral Kind = iota
	// KindGlob is a glob pattern (e.g. "bf2142*.exe").
	KindGlob
	// KindRegex is a regex pattern (prefixed with "re:").
	KindRegex
)

// String returns the string representation of a Kind.
func (k Kind) String() string {
	switch k {
	case KindLiteral:
		return "literal"
	case KindGlob:
		return "glob"
	case KindRegex:
		return "regex"
	default:
		return "unknown"
	}
}

// maxRegexComplexity bounds the backtracking score of user regexes.
const maxRegexComplexity = 1000

// Pattern is a compiled pattern.
type Pattern struct {
	Raw  string
	Kind Kind

	literal string
	glob    glob.Glob
	re      *regexp.Regexp
}

// Compile compiles a pattern string.
//   - "re:..." - regex
//   - contains *, ? or [ - glob
//   - otherwise - literal
func Compile(s string) (*Pattern, error) {
	if s == "" {
		return nil, fmt.Errorf("empty pattern")
	}

	if strings.HasPrefix(s, "re:") {
		return compileRegex(s)
	}

	if strings.ContainsAny(s, "*?[") {
		// Backslash is the Windows path separator, never an escape here.
		g, err := glob.Compile(strings.ToLower(strings.ReplaceAll(s, `\`, `\\`)))
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern: %w", err)
		}
		return &Pattern{Raw: s, Kind: KindGlob, glob: g}, nil
	}

	return &Pattern{Raw: s, Kind: KindLiteral, literal: strings.ToLower(s)}, nil
}

func compileRegex(s string) (*Pattern, error) {
	expr := strings.TrimPrefix(s, "re:")
	if expr == "" {
		return nil, fmt.Errorf("empty regex pattern")
	}

	parsed, err := syntax.Parse(expr, syntax.Perl)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	if c := complexity(parsed); c > maxRegexComplexity {
		return nil, fmt.Errorf("regex complexity %d exceeds maximum %d", c, maxRegexComplexity)
	}

	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	return &Pattern{Raw: s, Kind: KindRegex, re: re}, nil
}

// complexity scores a regex syntax tree; nested unbounded repetition
// dominates the score.
func complexity(re *syntax.Regexp) int {
	sum := 0
	for _, sub := range re.Sub {
		sum += complexity(sub)
	}

	switch re.Op {
	case syntax.OpStar, syntax.OpPlus:
		if sum > 1 {
			return sum * 100
		}
		return sum + 10
	case syntax.OpQuest:
		return sum + 2
	case syntax.OpRepeat:
		max := re.Max
		if max < 0 {
			max = 100
		}
		return sum * max / 10
	case syntax.OpConcat:
		return sum
	case syntax.OpAlternate:
		return sum * 2
	case syntax.OpCapture:
		return sum + 1
	default:
		return 1
	}
}

// Match reports whether s matches the pattern, ignoring case.
func (p *Pattern) Match(s string) bool {
	switch p.Kind {
	case KindLiteral:
		return strings.ToLower(s) == p.literal
	case KindGlob:
		return p.glob.Match(strings.ToLower(s))
	case KindRegex:
		return p.re.MatchString(s)
	default:
		return false
	}
}

// String returns the original pattern string.
func (p *Pattern) String() string {
	return p.Raw
}

// Set is an immutable collection of patterns.
type Set struct {
	patterns []*Pattern
}

// NewSet compiles every pattern; the first failure aborts.
func NewSet(patterns []string) (*Set, error) {
	s := &Set{patterns: make([]*Pattern, 0, len(patterns))}
	for _, raw := range patterns {
		p, err := Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", raw, err)
		}
		s.patterns = append(s.patterns, p)
	}
	return s, nil
}

// MatchAny returns the first pattern matching s, or nil.
func (s *Set) MatchAny(v string) *Pattern {
	if s == nil {
		return nil
	}
	for _, p := range s.patterns {
		if p.Match(v) {
			return p
		}
	}
	return nil
}

// Len returns the number of patterns in the set.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.patterns)
}
