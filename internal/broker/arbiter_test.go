package broker

import (
	"testing"

	"github.com/shaunagostinho/geobroker/internal/position"
)

func TestBetterAcceptsAnythingOverNothing(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	fixes := []position.Fix{
		{},
		{Accuracy: 1e9, Time: -5000},
		{Latitude: 90, Longitude: 180, Accuracy: 0.1, Time: 1},
	}
	for _, f := range fixes {
		if !Better(f, nil, cfg) {
			t.Fatalf("fix %+v must beat no fix", f)
		}
	}
}

func TestBetterFreshnessOverride(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	accepted := &position.Fix{Accuracy: 10, Time: 100_000, Source: position.HighAccuracy}

	// Candidate over a minute newer wins regardless of accuracy.
	cand := position.Fix{Accuracy: 100_000, Time: 100_000 + 60_001, Source: position.LowAccuracy}
	if !Better(cand, accepted, cfg) {
		t.Fatalf("significantly newer candidate must be accepted")
	}

	// At exactly the threshold the freshness override does not apply.
	cand.Time = 100_000 + 60_000
	if Better(cand, accepted, cfg) {
		t.Fatalf("candidate at the staleness threshold must not win on freshness")
	}
}

func TestBetterAccuracyOverride(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	accepted := &position.Fix{Accuracy: 50, Time: 100_000, Source: position.HighAccuracy}

	// Strictly more accurate wins even when older.
	cand := position.Fix{Accuracy: 49, Time: 50_000, Source: position.LowAccuracy}
	if !Better(cand, accepted, cfg) {
		t.Fatalf("strictly more accurate candidate must be accepted")
	}
}

func TestBetterNewerSameAccuracy(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	accepted := &position.Fix{Accuracy: 50, Time: 100_000, Source: position.HighAccuracy}

	cand := position.Fix{Accuracy: 50, Time: 100_001, Source: position.LowAccuracy}
	if !Better(cand, accepted, cfg) {
		t.Fatalf("newer, equally accurate candidate must be accepted")
	}
	cand.Time = 99_999
	if Better(cand, accepted, cfg) {
		t.Fatalf("older, equally accurate candidate must be rejected")
	}
}

func TestBetterSameSourceSlack(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	accepted := &position.Fix{Accuracy: 50, Time: 100_000, Source: position.HighAccuracy}

	cases := []struct {
		name   string
		accDel float64
		source position.Tier
		want   bool
	}{
		{"worse by slack, same source", 200, position.HighAccuracy, true},
		{"worse past slack, same source", 201, position.HighAccuracy, false},
		{"worse by slack, other source", 200, position.LowAccuracy, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cand := position.Fix{
				Accuracy: accepted.Accuracy + tc.accDel,
				Time:     accepted.Time + 1,
				Source:   tc.source,
			}
			if got := Better(cand, accepted, cfg); got != tc.want {
				t.Fatalf("Better = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBetterConfigurableThresholds(t *testing.T) {
	t.Parallel()

	cfg := Config{StaleAfterMs: 1000, AccuracySlackM: 5}.withDefaults()
	accepted := &position.Fix{Accuracy: 50, Time: 100_000, Source: position.HighAccuracy}

	if !Better(position.Fix{Accuracy: 1e6, Time: 101_001}, accepted, cfg) {
		t.Fatalf("custom staleness threshold not honored")
	}
	cand := position.Fix{Accuracy: 56, Time: 100_001, Source: position.HighAccuracy}
	if Better(cand, accepted, cfg) {
		t.Fatalf("custom accuracy slack not honored")
	}
}
