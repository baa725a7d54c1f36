package policy

import "fmt"

// Mode selects the evaluation algorithm.
type Mode int

const (
	// ModeLauncherFilter enables the overlay for whitelisted targets and
	// for children of launchers.
	ModeLauncherFilter Mode = 0
	// ModeWhitelistOnly enables the overlay only for whitelisted targets.
	ModeWhitelistOnly Mode = 1
	// ModeBlacklistOnly enables the overlay everywhere but the blacklist.
	ModeBlacklistOnly Mode = 2
)

// ParseMode converts a stored mode value. Unknown values fall back to
// ModeLauncherFilter and report false.
func ParseMode(v int) (Mode, bool) {
	switch m := Mode(v); m {
	case ModeLauncherFilter, ModeWhitelistOnly, ModeBlacklistOnly:
		return m, true
	default:
		return ModeLauncherFilter, false
	}
}

func (m Mode) String() string {
	switch m {
	case ModeLauncherFilter:
		return "launcher-filter"
	case ModeWhitelistOnly:
		return "whitelist-only"
	case ModeBlacklistOnly:
		return "blacklist-only"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}
