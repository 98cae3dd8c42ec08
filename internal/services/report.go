package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"

	"github.com/jstittsworth/matchup-engine/internal/matchup"
)

// MatchupReport is the display-oriented view of a scoring run: the full
// ranked table plus the best and worst matchup slices.
type MatchupReport struct {
	Rankings []matchup.ScoredResult `json:"rankings"`
	Targets  []matchup.ScoredResult `json:"targets"`
	Fades    []matchup.ScoredResult `json:"fades"`
}

// ReportService turns scored results into reports and CSV exports.
type ReportService struct {
	defaultSize int
}

func NewReportService(defaultSize int) *ReportService {
	if defaultSize <= 0 {
		defaultSize = 10
	}
	return &ReportService{defaultSize: defaultSize}
}

// BuildReport slices the ranked results into targets (best edges) and
// fades (worst edges). size <= 0 falls back to the configured default.
func (s *ReportService) BuildReport(results []matchup.ScoredResult, size int) MatchupReport {
	if size <= 0 {
		size = s.defaultSize
	}

	// Results arrive ranked by |edge|; targets and fades need signed
	// order instead.
	signed := make([]matchup.ScoredResult, len(results))
	copy(signed, results)
	sort.SliceStable(signed, func(i, j int) bool {
		return signed[i].EdgeScore > signed[j].EdgeScore
	})

	n := len(signed)
	top := size
	if top > n {
		top = n
	}

	targets := make([]matchup.ScoredResult, top)
	copy(targets, signed[:top])

	fades := make([]matchup.ScoredResult, top)
	copy(fades, signed[n-top:])
	// Worst first.
	for i, j := 0, len(fades)-1; i < j; i, j = i+1, j-1 {
		fades[i], fades[j] = fades[j], fades[i]
	}

	return MatchupReport{
		Rankings: results,
		Targets:  targets,
		Fades:    fades,
	}
}

// ExportCSV renders the ranked table as CSV with display rounding, one
// decimal on the efficiency and edge columns.
func (s *ReportService) ExportCSV(results []matchup.ScoredResult) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := []string{"rank", "player", "team", "opponent", "routes_played", "route_share", "base_yprr", "adjusted_yprr", "edge_score"}
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, res := range results {
		record := []string{
			fmt.Sprintf("%d", res.Rank),
			res.Player,
			res.Team,
			res.Opponent,
			fmt.Sprintf("%d", res.RoutesPlayed),
			fmt.Sprintf("%.2f", res.RouteShare),
			fmt.Sprintf("%.1f", res.BaseYPRR),
			fmt.Sprintf("%.1f", res.AdjustedYPRR),
			fmt.Sprintf("%.1f", res.EdgeScore),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}

	return buf.Bytes(), nil
}
