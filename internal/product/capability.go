package product

import (
	"fmt"
	"strings"
)

// Capabilities is what a product can do under a given router.
type Capabilities struct {
	Sync  bool
	Async bool
}

// CapabilitiesOf derives the capabilities of p. Async needs the router to
// advertise async search as well as the product to carry the callback pair.
func CapabilitiesOf(p *Product, routerAsync bool) Capabilities {
	_, sync := p.SyncSearchFunc()
	_, _, async := p.AsyncSearchFuncs()
	return Capabilities{Sync: sync, Async: routerAsync && async}
}

// Search reports whether any opportunity search is offered.
func (c Capabilities) Search() bool { return c.Sync || c.Async }

// Preference is the client's Prefer header value.
type Preference string

const (
	PreferNone         Preference = ""
	PreferRespondAsync Preference = "respond-async"
	PreferWait         Preference = "wait"
)

// ParsePreference reads a Prefer header. Parameters such as "wait=10" are
// reduced to their token; unrelated preferences are ignored.
func ParsePreference(header string) (Preference, error) {
	pref := PreferNone
	for _, part := range strings.Split(header, ",") {
		token, _, _ := strings.Cut(strings.TrimSpace(part), "=")
		token = strings.ToLower(strings.TrimSpace(token))
		switch Preference(token) {
		case PreferWait, PreferRespondAsync:
			if pref != PreferNone && pref != Preference(token) {
				return PreferNone, fmt.Errorf("conflicting preferences %q and %q", pref, token)
			}
			pref = Preference(token)
		}
	}
	return pref, nil
}

type Mode int

const (
	ModeSync Mode = iota
	ModeAsync
)

func (m Mode) String() string {
	if m == ModeAsync {
		return "async"
	}
	return "sync"
}

// Decision is the outcome of Decide.
type Decision struct {
	Mode Mode
	// PreferenceApplied is the Preference-Applied header value, empty when
	// the header is not sent.
	PreferenceApplied Preference
}

// Decide chooses between a synchronous and an asynchronous search.
//
//	async unavailable           -> sync
//	async only                  -> async, whatever the preference
//	both, Prefer: wait          -> sync
//	both, no preference         -> async
//	both, Prefer: respond-async -> async
//
// Async responses echo any supplied preference; sync responses only report
// an honored wait.
func Decide(c Capabilities, pref Preference) Decision {
	var mode Mode
	switch {
	case !c.Async:
		mode = ModeSync
	case !c.Sync:
		mode = ModeAsync
	case pref == PreferWait:
		mode = ModeSync
	default:
		mode = ModeAsync
	}

	d := Decision{Mode: mode}
	if mode == ModeAsync {
		d.PreferenceApplied = pref
	} else if pref == PreferWait {
		d.PreferenceApplied = PreferWait
	}
	return d
}
