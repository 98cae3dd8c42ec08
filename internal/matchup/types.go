package matchup

// ReceiverSplit is one receiver's season efficiency line plus its
// situational yards-per-route-run splits. Split fields are pointers
// because low-volume receivers often have no sample for a situation;
// nil means unobserved, not zero.
type ReceiverSplit struct {
	Player       string  `json:"player"`
	Team         string  `json:"team"`
	Opponent     string  `json:"opponent"`
	BaseYPRR     float64 `json:"base_yprr"`
	RoutesPlayed int     `json:"routes_played"`

	VsMan      *float64 `json:"yprr_man,omitempty"`
	VsZone     *float64 `json:"yprr_zone,omitempty"`
	VsOneHigh  *float64 `json:"yprr_one_high,omitempty"`
	VsTwoHigh  *float64 `json:"yprr_two_high,omitempty"`
	VsZeroHigh *float64 `json:"yprr_zero_high,omitempty"`
	VsBlitz    *float64 `json:"yprr_blitz,omitempty"`
	VsNoBlitz  *float64 `json:"yprr_no_blitz,omitempty"`

	// SeasonRouteShare is the receiver's fraction of team routes (0-1),
	// when the upstream table precomputed it.
	SeasonRouteShare *float64 `json:"season_route_share,omitempty"`
}

// DefenseProfile describes one team's pass-defense tendencies as
// fractional frequencies in [0,1]. ManPct+ZonePct and the three shell
// percentages each sum to ~1 for clean data; the scorer tolerates
// degenerate rows that don't.
type DefenseProfile struct {
	Team        string  `json:"team"`
	ManPct      float64 `json:"man_pct"`
	ZonePct     float64 `json:"zone_pct"`
	OneHighPct  float64 `json:"one_high_pct"`
	TwoHighPct  float64 `json:"two_high_pct"`
	ZeroHighPct float64 `json:"zero_high_pct"`
	BlitzPct    float64 `json:"blitz_pct"`
}

// NoBlitzPct is the implied standard-pressure frequency.
func (d DefenseProfile) NoBlitzPct() float64 {
	return 1 - d.BlitzPct
}

// MatchupRow joins an eligible receiver with its opponent's defense.
type MatchupRow struct {
	Receiver ReceiverSplit  `json:"receiver"`
	Defense  DefenseProfile `json:"defense"`
}

// ScoredResult is one ranked output row. Rank is always derived from
// the final edge scores; re-sorting by |EdgeScore| descending must
// reproduce the stored order.
type ScoredResult struct {
	Player         string  `json:"player"`
	Team           string  `json:"team"`
	Opponent       string  `json:"opponent"`
	RoutesPlayed   int     `json:"routes_played"`
	RouteShare     float64 `json:"route_share"`
	BaseYPRR       float64 `json:"base_yprr"`
	AdjustedYPRR   float64 `json:"adjusted_yprr"`
	ExpectedRatio  float64 `json:"expected_ratio"`
	EdgePrePenalty float64 `json:"edge_pre_penalty"`
	Penalty        float64 `json:"penalty"`
	EdgeScore      float64 `json:"edge_score"`
	Rank           int     `json:"rank"`
}
