package policy

import (
	"github.com/gameoverlay/gameoverlay/internal/policy/ancestry"
	"github.com/gameoverlay/gameoverlay/internal/policy/identity"
)

// Reason names the rule that decided an evaluation.
type Reason string

const (
	ReasonBlacklisted    Reason = "blacklisted"
	ReasonWhitelisted    Reason = "whitelisted"
	ReasonPathWhitelist  Reason = "path-whitelisted"
	ReasonLauncher       Reason = "launcher-ancestor"
	ReasonNoMatch        Reason = "no-match"
	ReasonNotWhitelisted Reason = "not-whitelisted"
	ReasonNotBlacklisted Reason = "not-blacklisted"
)

// Decision is the outcome of evaluating a target.
type Decision struct {
	Enabled bool
	Mode    Mode
	Reason  Reason

	// Rule is the rule that fired, if any.
	Rule *Rule

	// Ancestor is the launcher ancestor for ReasonLauncher.
	Ancestor identity.Process
}

// Inputs are the user supplied parts of a snapshot.
type Inputs struct {
	Mode Mode

	Add    map[List][]string
	Remove map[List][]string
}

// Snapshot is an immutable, fully merged exclusion configuration. It is safe
// for concurrent use.
type Snapshot struct {
	mode  Mode
	lists map[List][]string
	rules map[List][]Rule
}

// NewSnapshot merges the defaults with the user inputs.
func NewSnapshot(defaults identity.Lists, in Inputs) *Snapshot {
	base := map[List][]string{
		ListBlacklist: defaults.Blacklist,
		ListWhitelist: defaults.Whitelist,
		ListPaths:     defaults.Paths,
		ListLaunchers: defaults.Launchers,
	}

	s := &Snapshot{
		mode:  in.Mode,
		lists: make(map[List][]string, len(Lists)),
		rules: make(map[List][]Rule, len(Lists)),
	}
	for _, l := range Lists {
		merged := Merge(base[l], in.Add[l], in.Remove[l])
		s.lists[l] = merged
		rules := make([]Rule, 0, len(merged))
		for _, entry := range merged {
			rules = append(rules, NewRule(l, entry))
		}
		s.rules[l] = rules
	}
	return s
}

// Mode returns the evaluation mode.
func (s *Snapshot) Mode() Mode { return s.mode }

// List returns a copy of the effective entries of l.
func (s *Snapshot) List(l List) []string {
	return append([]string(nil), s.lists[l]...)
}

// Rules returns a copy of the compiled rules of l.
func (s *Snapshot) Rules(l List) []Rule {
	return append([]Rule(nil), s.rules[l]...)
}

func (s *Snapshot) match(l List, p identity.Process) *Rule {
	for i := range s.rules[l] {
		if s.rules[l][i].Match(p) {
			r := s.rules[l][i]
			return &r
		}
	}
	return nil
}

// Evaluate decides whether the overlay is enabled for target, whose
// ancestors are chain. An empty chain never matches a launcher.
func (s *Snapshot) Evaluate(target identity.Process, chain ancestry.Chain) Decision {
	target = target.Folded()
	d := Decision{Mode: s.mode}

	switch s.mode {
	case ModeWhitelistOnly:
		if d.Rule = s.match(ListWhitelist, target); d.Rule != nil {
			d.Enabled, d.Reason = true, ReasonWhitelisted
			return d
		}
		d.Reason = ReasonNotWhitelisted
		return d

	case ModeBlacklistOnly:
		if d.Rule = s.match(ListBlacklist, target); d.Rule != nil {
			d.Reason = ReasonBlacklisted
			return d
		}
		d.Enabled, d.Reason = true, ReasonNotBlacklisted
		return d
	}

	if d.Rule = s.match(ListBlacklist, target); d.Rule != nil {
		d.Reason = ReasonBlacklisted
		return d
	}
	if d.Rule = s.match(ListWhitelist, target); d.Rule != nil {
		d.Enabled, d.Reason = true, ReasonWhitelisted
		return d
	}
	if d.Rule = s.match(ListPaths, target); d.Rule != nil {
		d.Enabled, d.Reason = true, ReasonPathWhitelist
		return d
	}
	for _, ancestor := range chain {
		if d.Rule = s.match(ListLaunchers, ancestor.Folded()); d.Rule != nil {
			d.Enabled, d.Reason, d.Ancestor = true, ReasonLauncher, ancestor
			return d
		}
	}
	d.Reason = ReasonNoMatch
	return d
}
