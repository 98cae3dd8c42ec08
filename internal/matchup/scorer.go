package matchup

import (
	"math"
	"sort"
)

// Score adjusts each receiver's base YPRR for its opponent's coverage,
// safety-shell, and blitz tendencies and ranks the results by the
// magnitude of the resulting edge. It is a pure function: identical
// inputs always produce the identical ordered slice.
//
// Ineligible rows (non-positive base efficiency, zero routes, or an
// opponent with no defense profile) are dropped, never zero-scored. An
// empty eligible pool returns an empty slice and no error.
func Score(receivers []ReceiverSplit, defenses map[string]DefenseProfile, cfg Config) ([]ScoredResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rows := Eligible(receivers, defenses, cfg)
	if len(rows) == 0 {
		return []ScoredResult{}, nil
	}

	reference := cfg.RouteShareReference
	if cfg.RouteShareMode == RouteSharePercentile {
		reference = routesPercentile(rows, cfg.ReferencePercentile)
	}

	results := make([]ScoredResult, 0, len(rows))
	for _, row := range rows {
		res := scoreRow(row, reference, cfg)
		if cfg.QualifiedMinimumRouteShare > 0 && qualifyingShare(row.Receiver, res.RouteShare) < cfg.QualifiedMinimumRouteShare {
			continue
		}
		results = append(results, res)
	}

	// Most extreme matchups first, good or bad. Stable so ties keep
	// input order and reruns stay deterministic.
	sort.SliceStable(results, func(i, j int) bool {
		return math.Abs(results[i].EdgeScore) > math.Abs(results[j].EdgeScore)
	})
	for i := range results {
		results[i].Rank = i + 1
	}

	return results, nil
}

// Eligible joins each receiver with its opponent's defense, dropping
// rows below the base-efficiency floor, with no routes, or with no
// resolvable opponent. Score runs on exactly this pool.
func Eligible(receivers []ReceiverSplit, defenses map[string]DefenseProfile, cfg Config) []MatchupRow {
	rows := make([]MatchupRow, 0, len(receivers))
	for _, r := range receivers {
		if r.BaseYPRR <= cfg.MinBaseYPRR || r.RoutesPlayed <= 0 {
			continue
		}
		defense, ok := defenses[r.Opponent]
		if !ok {
			continue
		}
		rows = append(rows, MatchupRow{Receiver: r, Defense: defense})
	}
	return rows
}

func scoreRow(row MatchupRow, reference float64, cfg Config) ScoredResult {
	r := row.Receiver
	d := row.Defense
	base := r.BaseYPRR

	// A missing situational sample is assumed to play at the season
	// baseline, so its ratio is neutral.
	ratio := func(split *float64) float64 {
		if split == nil {
			return 1
		}
		return *split / base
	}

	coverage := d.ManPct*ratio(r.VsMan) + d.ZonePct*ratio(r.VsZone)

	shellSum := d.OneHighPct + d.TwoHighPct + d.ZeroHighPct
	safety := 0.0
	if shellSum > 0 {
		safety = (d.OneHighPct*ratio(r.VsOneHigh) +
			d.TwoHighPct*ratio(r.VsTwoHigh) +
			d.ZeroHighPct*ratio(r.VsZeroHigh)) / shellSum
	}

	coverageSafety := (coverage + safety) / 2

	// Blitz exposure only matters in proportion to how often it
	// happens; standard pressure contributes a neutral ratio.
	blitz := d.BlitzPct*ratio(r.VsBlitz) + d.NoBlitzPct()*1.0

	expected := (coverageSafety + blitz) / 2
	adjusted := base * expected

	rawEdge := clamp((adjusted-base)/base, -cfg.EdgeClamp, cfg.EdgeClamp)
	edge := rawEdge / cfg.EdgeClamp * 100

	routeShare := float64(r.RoutesPlayed) / reference
	penalty := routeSharePenalty(routeShare, cfg)

	return ScoredResult{
		Player:         r.Player,
		Team:           r.Team,
		Opponent:       r.Opponent,
		RoutesPlayed:   r.RoutesPlayed,
		RouteShare:     routeShare,
		BaseYPRR:       base,
		AdjustedYPRR:   adjusted,
		ExpectedRatio:  expected,
		EdgePrePenalty: edge,
		Penalty:        penalty,
		EdgeScore:      edge * (1 - penalty),
	}
}

// routeSharePenalty suppresses low-volume samples: zero at or above the
// full-confidence threshold, the configured maximum at or below the
// zero-confidence threshold, and a polynomial ramp in between.
func routeSharePenalty(share float64, cfg Config) float64 {
	if share >= cfg.FullConfidenceThreshold {
		return 0
	}
	if share <= cfg.ZeroConfidenceThreshold {
		return cfg.MaxPenalty
	}
	frac := (cfg.FullConfidenceThreshold - share) / (cfg.FullConfidenceThreshold - cfg.ZeroConfidenceThreshold)
	return cfg.MaxPenalty * math.Pow(frac, cfg.PenaltyExponent)
}

// qualifyingShare prefers the precomputed season route share when the
// upstream table carried one; otherwise the reference-relative share.
func qualifyingShare(r ReceiverSplit, computed float64) float64 {
	if r.SeasonRouteShare != nil {
		return *r.SeasonRouteShare
	}
	return computed
}

// routesPercentile derives the route-share reference from the eligible
// pool using the nearest-rank method. Falls back to the pool maximum
// for degenerate percentiles.
func routesPercentile(rows []MatchupRow, pct float64) float64 {
	routes := make([]int, len(rows))
	for i, row := range rows {
		routes[i] = row.Receiver.RoutesPlayed
	}
	sort.Ints(routes)

	idx := int(math.Ceil(pct*float64(len(routes)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(routes) {
		idx = len(routes) - 1
	}
	return float64(routes[idx])
}

func clamp(val, low, high float64) float64 {
	return math.Max(low, math.Min(high, val))
}
