package identity

// Lists holds the compiled-in exclusion defaults. Entries are matched
// case-insensitively; an entry containing a path separator is an absolute
// path, anything else is an executable basename.
type Lists struct {
	Blacklist []string
	Whitelist []string
	Paths     []string
	Launchers []string
}

// builtinBlacklist names programs that draw through a hooked graphics API but
// are not games: browsers, media players, shells and system compositors.
var builtinBlacklist = []string{
	"iexplore.exe",
	"ieuser.exe",
	"vlc.exe",
	"dbgview.exe",
	"opera.exe",
	"chrome.exe",
	"acrord32.exe",
	"explorer.exe",
	"wmpnscfg.exe",
	"firefox.exe",
	"thunderbird.exe",
	"instantbird.exe",
	"wlmail.exe",
	"msnmsgr.exe",
	"moviemaker.exe",
	"wlxphotogallery.exe",
	"psi.exe",
	"dwm.exe",
	"devenv.exe",
	"spotify.exe",
	"skype.exe",
	"steamwebhelper.exe",
	"origin.exe",
	"battle.net.exe",
	"galaxyclient.exe",
	"epicgameslauncher.exe",
}

var builtinWhitelist = []string{}

var builtinPaths = []string{}

// builtinLaunchers are game store clients; children they start are games.
var builtinLaunchers = []string{
	"Steam.exe",                 // Steam
	"EALaunchHelper.exe",        // Origin
	"Battle.net.exe",            // Battle.net
	"GalaxyClient.exe",          // GOG Galaxy
	"ffxivlauncher.exe",         // Final Fantasy XIV
	"UbisoftGameLauncher.exe",   // Uplay
	"UbisoftGameLauncher64.exe", // Uplay
}

// Builtin returns a fresh copy of the compiled-in lists.
func Builtin() Lists {
	return Lists{
		Blacklist: append([]string(nil), builtinBlacklist...),
		Whitelist: append([]string(nil), builtinWhitelist...),
		Paths:     append([]string(nil), builtinPaths...),
		Launchers: append([]string(nil), builtinLaunchers...),
	}
}
