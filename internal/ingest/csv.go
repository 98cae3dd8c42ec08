// Package ingest decodes the three CSV tables the engine consumes:
// receiver splits, defense tendencies, and the weekly matchup schedule.
// All scale normalization happens here so the scoring core only ever
// sees fractional percentages.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/jstittsworth/matchup-engine/internal/matchup"
)

// Team-column candidates for the defense table, tried in order.
var defenseTeamColumns = []string{"team", "defense", "def_team", "abbr"}

// header maps lower-cased column names to their index.
type header map[string]int

func readTable(r io.Reader) (header, [][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	hdr, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	h := make(header, len(hdr))
	for i, name := range hdr {
		h[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row: %w", err)
		}
		rows = append(rows, rec)
	}
	return h, rows, nil
}

// index returns the position of the first matching column name, or -1.
func (h header) index(names ...string) int {
	for _, name := range names {
		if i, ok := h[name]; ok {
			return i
		}
	}
	return -1
}

func field(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}

func isMissing(s string) bool {
	switch strings.ToLower(s) {
	case "", "na", "n/a", "nan", "null":
		return true
	}
	return false
}

func parseFloat(s string) (float64, bool) {
	if isMissing(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ReadReceiverSplits decodes the receiver table. Missing situational
// split cells become nil pointers; rows missing player or base columns
// are skipped rather than failing the whole upload.
func ReadReceiverSplits(r io.Reader) ([]matchup.ReceiverSplit, error) {
	h, rows, err := readTable(r)
	if err != nil {
		return nil, fmt.Errorf("receiver csv: %w", err)
	}

	iPlayer := h.index("player", "name")
	iTeam := h.index("team")
	iBase := h.index("base_yprr", "yprr")
	iRoutes := h.index("routes_played", "routes")
	if iPlayer < 0 || iTeam < 0 || iBase < 0 || iRoutes < 0 {
		return nil, fmt.Errorf("receiver csv: required columns missing (need player, team, base_yprr, routes_played)")
	}

	iOpp := h.index("opponent", "opp")
	iShare := h.index("season_route_share", "route_share")
	splits := map[string]int{
		"man":       h.index("yprr_man", "yprr_vs_man"),
		"zone":      h.index("yprr_zone", "yprr_vs_zone"),
		"one_high":  h.index("yprr_one_high", "yprr_onehigh", "yprr_1high"),
		"two_high":  h.index("yprr_two_high", "yprr_twohigh", "yprr_2high"),
		"zero_high": h.index("yprr_zero_high", "yprr_zerohigh", "yprr_0high"),
		"blitz":     h.index("yprr_blitz", "yprr_vs_blitz"),
		"no_blitz":  h.index("yprr_no_blitz", "yprr_noblitz", "yprr_standard"),
	}

	out := make([]matchup.ReceiverSplit, 0, len(rows))
	for _, rec := range rows {
		player := field(rec, iPlayer)
		if isMissing(player) {
			continue
		}
		base, ok := parseFloat(field(rec, iBase))
		if !ok {
			continue
		}
		routes, err := strconv.Atoi(field(rec, iRoutes))
		if err != nil {
			// Some exports emit route counts as floats; round rather
			// than truncate so "80.7" reads as 81.
			if f, ok := parseFloat(field(rec, iRoutes)); ok {
				routes = int(math.Round(f))
			} else {
				continue
			}
		}

		split := func(key string) *float64 {
			if v, ok := parseFloat(field(rec, splits[key])); ok {
				return &v
			}
			return nil
		}

		rs := matchup.ReceiverSplit{
			Player:       player,
			Team:         strings.ToUpper(field(rec, iTeam)),
			Opponent:     strings.ToUpper(field(rec, iOpp)),
			BaseYPRR:     base,
			RoutesPlayed: routes,
			VsMan:        split("man"),
			VsZone:       split("zone"),
			VsOneHigh:    split("one_high"),
			VsTwoHigh:    split("two_high"),
			VsZeroHigh:   split("zero_high"),
			VsBlitz:      split("blitz"),
			VsNoBlitz:    split("no_blitz"),
		}
		if v, ok := parseFloat(field(rec, iShare)); ok {
			rs.SeasonRouteShare = &v
		}
		out = append(out, rs)
	}
	return out, nil
}

// ReadDefenseProfiles decodes the defense tendency table, auto-detecting
// the team column and normalizing 0-100 percentage columns to fractions.
func ReadDefenseProfiles(r io.Reader) (map[string]matchup.DefenseProfile, error) {
	h, rows, err := readTable(r)
	if err != nil {
		return nil, fmt.Errorf("defense csv: %w", err)
	}

	iTeam := h.index(defenseTeamColumns...)
	if iTeam < 0 {
		return nil, fmt.Errorf("defense csv: must contain a team column (one of %s)",
			strings.Join(defenseTeamColumns, ", "))
	}

	cols := map[string]int{
		"man_pct":       h.index("man_pct", "man"),
		"zone_pct":      h.index("zone_pct", "zone"),
		"one_high_pct":  h.index("one_high_pct", "onehigh_pct", "1high_pct"),
		"two_high_pct":  h.index("two_high_pct", "twohigh_pct", "2high_pct"),
		"zero_high_pct": h.index("zero_high_pct", "zerohigh_pct", "0high_pct"),
		"blitz_pct":     h.index("blitz_pct", "blitz"),
	}
	for name, idx := range cols {
		if idx < 0 {
			return nil, fmt.Errorf("defense csv: required column %s missing", name)
		}
	}

	// Raw uploads arrive on either a 0-1 or a 0-100 scale. Decide per
	// column: anything above 1.5 cannot be a fraction.
	scale := make(map[string]float64, len(cols))
	for name, idx := range cols {
		scale[name] = 1
		for _, rec := range rows {
			if v, ok := parseFloat(field(rec, idx)); ok && v > 1.5 {
				scale[name] = 100
				break
			}
		}
	}

	pct := func(rec []string, name string) float64 {
		v, ok := parseFloat(field(rec, cols[name]))
		if !ok {
			return 0
		}
		return v / scale[name]
	}

	out := make(map[string]matchup.DefenseProfile, len(rows))
	for _, rec := range rows {
		team := strings.ToUpper(field(rec, iTeam))
		if isMissing(team) {
			continue
		}
		out[team] = matchup.DefenseProfile{
			Team:        team,
			ManPct:      pct(rec, "man_pct"),
			ZonePct:     pct(rec, "zone_pct"),
			OneHighPct:  pct(rec, "one_high_pct"),
			TwoHighPct:  pct(rec, "two_high_pct"),
			ZeroHighPct: pct(rec, "zero_high_pct"),
			BlitzPct:    pct(rec, "blitz_pct"),
		}
	}
	return out, nil
}

// ReadMatchups decodes the weekly schedule as a team -> opponent map.
func ReadMatchups(r io.Reader) (map[string]string, error) {
	h, rows, err := readTable(r)
	if err != nil {
		return nil, fmt.Errorf("matchup csv: %w", err)
	}

	iTeam := h.index("team")
	iOpp := h.index("opponent", "opp")
	if iTeam < 0 || iOpp < 0 {
		return nil, fmt.Errorf("matchup csv: required columns missing (need team, opponent)")
	}

	out := make(map[string]string, len(rows))
	for _, rec := range rows {
		team := strings.ToUpper(field(rec, iTeam))
		opp := strings.ToUpper(field(rec, iOpp))
		if isMissing(team) || isMissing(opp) {
			continue
		}
		out[team] = opp
	}
	return out, nil
}

// MergeOpponents fills each receiver's opponent from the schedule. A
// receiver whose team has no scheduled opponent keeps an empty opponent
// and falls out at the eligibility filter.
func MergeOpponents(receivers []matchup.ReceiverSplit, schedule map[string]string) []matchup.ReceiverSplit {
	out := make([]matchup.ReceiverSplit, len(receivers))
	copy(out, receivers)
	for i := range out {
		if opp, ok := schedule[out[i].Team]; ok {
			out[i].Opponent = opp
		}
	}
	return out
}

// MissingDefenses returns the sorted set of opponent codes that have no
// defense profile, for surfacing as an upload warning.
func MissingDefenses(receivers []matchup.ReceiverSplit, defenses map[string]matchup.DefenseProfile) []string {
	seen := make(map[string]struct{})
	for _, r := range receivers {
		if r.Opponent == "" {
			continue
		}
		if _, ok := defenses[r.Opponent]; !ok {
			seen[r.Opponent] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for team := range seen {
		out = append(out, team)
	}
	sort.Strings(out)
	return out
}
