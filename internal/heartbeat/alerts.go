package heartbeat

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// AlertTier is the severity of a heartbeat alert (spec.md §4.4 step 7).
type AlertTier string

const (
	TierInfo   AlertTier = "INFO"
	TierWatch  AlertTier = "WATCH"
	TierAction AlertTier = "ACTION"
)

// Alert is one emitted notification. Emission is currently logging;
// the Alert struct exists so a future transport (email, webhook) can be
// bolted on without touching the dedup policy.
type Alert struct {
	Tier      AlertTier
	Message   string
	Symbols   []string
	EmittedAt time.Time
}

// AlertDedup implements spec.md §4.4's per-cycle alert policy (the
// first-cycle suppression, where there is no prior state to diff
// against, is done by Worker.RunOnce, which does not call AlertDedup on
// its first cycle):
//   - a symbol newly becoming eligible raises one INFO alert
//   - symbols leaving eligibility are aggregated into a single ACTION
//     alert, rate-limited to at most one per cooldown window
//   - a regime change raises one WATCH alert
//
// Grounded on the teacher's scheduler job-result logging pattern
// (internal/scheduler/scheduler.go's per-job log.Info/log.Warn calls),
// generalized into a stateful rate limiter since spec.md requires the
// removal alert specifically to be cooldown-gated rather than logged
// unconditionally every cycle.
type AlertDedup struct {
	cooldown time.Duration

	mu               sync.Mutex
	lastRemovalAlert time.Time
}

// NewAlertDedup constructs an AlertDedup with the given removal-alert
// cooldown (spec.md config: CandidateRemovalCooldownHours).
func NewAlertDedup(cooldown time.Duration) *AlertDedup {
	return &AlertDedup{cooldown: cooldown}
}

// NewCandidates emits one INFO alert per symbol that newly became
// eligible this cycle.
func (a *AlertDedup) NewCandidates(symbols []string) {
	for _, sym := range symbols {
		log.Info().Str("tier", string(TierInfo)).Str("symbol", sym).
			Msg("heartbeat: new eligible candidate")
	}
}

// RemovedCandidates emits a single aggregated ACTION alert for symbols
// that left eligibility this cycle, suppressed if the last such alert
// fired within the cooldown window. Reports whether the alert actually
// fired, so callers can keep alert-volume metrics accurate under
// suppression.
func (a *AlertDedup) RemovedCandidates(symbols []string, now time.Time) bool {
	if len(symbols) == 0 {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.lastRemovalAlert.IsZero() && now.Sub(a.lastRemovalAlert) < a.cooldown {
		log.Debug().Strs("symbols", symbols).
			Msg("heartbeat: candidate removal alert suppressed by cooldown")
		return false
	}

	a.lastRemovalAlert = now
	log.Warn().Str("tier", string(TierAction)).Strs("symbols", symbols).
		Msg("heartbeat: candidates removed from eligibility")
	return true
}

// RegimeChanged emits a single WATCH alert when the market regime
// differs from the previous cycle's.
func (a *AlertDedup) RegimeChanged(from, to string) {
	log.Info().Str("tier", string(TierWatch)).Str("from", from).Str("to", to).
		Msg("heartbeat: market regime changed")
}
