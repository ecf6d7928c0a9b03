// Package marketclock computes the equity market phase (spec.md §6.2's
// market_phase field, §4.5's market-hours gate) against the NYSE/Nasdaq
// regular session: 09:30-16:00 America/New_York on weekdays, with a
// PRE/POST window either side. No library in the retrieval pack
// implements a market calendar (the crypto teacher trades 24/7 and has
// no such concept); this is stdlib time.Time + time.LoadLocation only,
// matching the one usage sketch seen in the pack's reference material
// (an internal/market calendar package with no importable third-party
// backing of its own).
package marketclock

import "time"

// Phase is the market session state (spec.md §6.2).
type Phase string

const (
	PhaseOpen    Phase = "OPEN"
	PhaseClosed  Phase = "CLOSED"
	PhasePre     Phase = "PRE"
	PhasePost    Phase = "POST"
	PhaseUnknown Phase = "UNKNOWN"
)

var (
	preOpenHour   = 4
	regularOpenH  = 9
	regularOpenM  = 30
	regularCloseH = 16
	postCloseHour = 20
)

// Clock computes the market phase for a configured timezone.
type Clock struct {
	loc *time.Location
}

// NewClock constructs a Clock for the given IANA timezone name
// (spec.md's SchedulerConfig.Timezone, default "America/New_York").
func NewClock(timezone string) (*Clock, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	return &Clock{loc: loc}, nil
}

// Phase returns the market phase at instant at (spec.md §6.3 GetMarketPhase(at?)).
func (c *Clock) Phase(at time.Time) Phase {
	local := at.In(c.loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return PhaseClosed
	}

	minutesOfDay := local.Hour()*60 + local.Minute()
	regularOpen := regularOpenH*60 + regularOpenM
	regularClose := regularCloseH * 60
	preOpen := preOpenHour * 60
	postClose := postCloseHour * 60

	switch {
	case minutesOfDay >= regularOpen && minutesOfDay < regularClose:
		return PhaseOpen
	case minutesOfDay >= preOpen && minutesOfDay < regularOpen:
		return PhasePre
	case minutesOfDay >= regularClose && minutesOfDay < postClose:
		return PhasePost
	default:
		return PhaseClosed
	}
}

// IsOpen reports whether at falls within the regular session.
func (c *Clock) IsOpen(at time.Time) bool {
	return c.Phase(at) == PhaseOpen
}

// Now returns the current phase using the wall clock.
func (c *Clock) Now() Phase {
	return c.Phase(time.Now())
}
