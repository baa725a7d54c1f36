// Package policy decides whether the overlay should be enabled inside a
// process, from its executable identity and its ancestry.
package policy

import (
	"fmt"
	"strings"

	"github.com/gameoverlay/gameoverlay/internal/policy/identity"
	"github.com/gameoverlay/gameoverlay/internal/policy/source"
)

// List names one of the exclusion rule lists.
type List int

const (
	ListBlacklist List = iota
	ListWhitelist
	ListPaths
	ListLaunchers
)

// Lists enumerates every list in evaluation order.
var Lists = []List{ListBlacklist, ListWhitelist, ListPaths, ListLaunchers}

// String returns the configuration value name of the list.
func (l List) String() string {
	switch l {
	case ListBlacklist:
		return source.Blacklist
	case ListWhitelist:
		return source.Whitelist
	case ListPaths:
		return source.Paths
	case ListLaunchers:
		return source.Launchers
	default:
		return fmt.Sprintf("list(%d)", int(l))
	}
}

// ExcludeName returns the configuration value name of the list's
// subtractive counterpart.
func (l List) ExcludeName() string {
	return l.String() + "exclude"
}

// RuleKind says how a rule is matched.
type RuleKind int

const (
	// KindBasename rules match the executable name exactly.
	KindBasename RuleKind = iota
	// KindAbsolutePath rules match the full executable path; in the paths
	// list they match as a directory prefix.
	KindAbsolutePath
)

func (k RuleKind) String() string {
	if k == KindAbsolutePath {
		return "path"
	}
	return "basename"
}

// Rule is a single folded entry of an exclusion list.
type Rule struct {
	Pattern string
	Kind    RuleKind
	List    List

	key string
}

// NewRule folds pattern and classifies it. An entry is an absolute path
// iff it contains a path separator. Entries of the paths list are always
// directory prefixes.
func NewRule(list List, pattern string) Rule {
	folded := strings.ToLower(pattern)
	r := Rule{Pattern: folded, Kind: KindBasename, List: list, key: folded}
	if list == ListPaths || identity.IsPath(folded) {
		r.Kind = KindAbsolutePath
		r.key = normalizePath(folded)
	}
	return r
}

// Match reports whether p satisfies the rule. p must be folded.
func (r Rule) Match(p identity.Process) bool {
	if r.Kind == KindBasename {
		return p.ExeName != "" && p.ExeName == r.key
	}
	if p.ExePath == "" {
		return false
	}
	path := normalizePath(p.ExePath)
	if r.List != ListPaths {
		return path == r.key
	}
	return hasDirPrefix(path, r.key)
}

func (r Rule) String() string {
	return fmt.Sprintf("%s:%s(%s)", r.List, r.Kind, r.Pattern)
}

// normalizePath makes both slash styles compare equal.
func normalizePath(p string) string {
	return strings.ReplaceAll(p, `\`, `/`)
}

// hasDirPrefix reports whether dir is path or one of its parent directories.
// "d:/games" is a prefix of "d:/games/wow.exe" but not of "d:/gameswow.exe".
func hasDirPrefix(path, dir string) bool {
	dir = strings.TrimRight(dir, "/")
	if !strings.HasPrefix(path, dir) {
		return false
	}
	return len(path) == len(dir) || path[len(dir)] == '/'
}
