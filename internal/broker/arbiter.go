package broker

import (
	"time"

	"github.com/shaunagostinho/geobroker/internal/position"
)

// Config holds the arbitration thresholds and scheduling intervals. The
// zero value is usable; withDefaults fills in the standard numbers.
type Config struct {
	// StaleAfterMs is how much newer a candidate must be before the
	// accepted fix is considered stale regardless of accuracy.
	StaleAfterMs int64
	// AccuracySlackM is the accuracy regression tolerated for a newer fix
	// from the same source tier.
	AccuracySlackM float64
	// RearmInterval is the quiescent period after an accepted best fix
	// before best-watching restarts.
	RearmInterval time.Duration
	// DefaultTimeout applies to one-shot requests that pass no timeout.
	DefaultTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.StaleAfterMs == 0 {
		c.StaleAfterMs = 60000
	}
	if c.AccuracySlackM == 0 {
		c.AccuracySlackM = 200
	}
	if c.RearmInterval == 0 {
		c.RearmInterval = 30 * time.Second
	}
	if c.DefaultTimeout == 0 {
		c.DefaultTimeout = 60 * time.Second
	}
	return c
}

// Better reports whether candidate should supersede accepted. It combines
// recency and accuracy: freshness wins unless it costs too much accuracy,
// and a small accuracy regression is tolerated from the same source tier
// because switching providers is the riskier move. Pure; the caller applies
// the decision.
func Better(candidate position.Fix, accepted *position.Fix, cfg Config) bool {
	if accepted == nil {
		// A new fix is always better than no fix.
		return true
	}

	ageDelta := candidate.Time - accepted.Time
	if ageDelta > cfg.StaleAfterMs {
		return true
	}
	newer := ageDelta > 0

	// Positive delta means the candidate is less accurate (larger radius).
	accuracyDelta := candidate.Accuracy - accepted.Accuracy
	switch {
	case accuracyDelta < 0:
		return true
	case newer && accuracyDelta <= 0:
		return true
	case newer && accuracyDelta <= cfg.AccuracySlackM && candidate.Source == accepted.Source:
		return true
	}
	return false
}
