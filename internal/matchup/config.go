package matchup

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig marks scoring configurations the model refuses to
// run with. Callers can match it with errors.Is.
var ErrInvalidConfig = errors.New("invalid matchup config")

// RouteShareMode selects how the route-share reference is obtained.
type RouteShareMode string

const (
	// RouteShareFixed uses the configured reference routes directly
	// (a "league leader routes" style constant).
	RouteShareFixed RouteShareMode = "fixed"
	// RouteSharePercentile derives the reference from the eligible
	// pool's routes played, once per scoring call.
	RouteSharePercentile RouteShareMode = "percentile"
)

// Config carries every tunable constant of the scoring model. Formula
// constants are configuration on purpose so variant weightings can be
// swapped without code changes.
type Config struct {
	// MinBaseYPRR is an exclusive eligibility floor on base efficiency.
	// Zero keeps the strict base_yprr > 0 rule.
	MinBaseYPRR float64 `json:"min_base_yprr"`

	// EdgeClamp bounds |raw edge| before scaling to the +/-100 score.
	EdgeClamp float64 `json:"edge_clamp"`

	// Route-share penalty shape.
	MaxPenalty              float64 `json:"max_penalty"`
	PenaltyExponent         float64 `json:"penalty_exponent"`
	FullConfidenceThreshold float64 `json:"full_confidence_threshold"`
	ZeroConfidenceThreshold float64 `json:"zero_confidence_threshold"`

	// Route-share reference source.
	RouteShareMode      RouteShareMode `json:"route_share_mode"`
	RouteShareReference float64        `json:"route_share_reference"`
	ReferencePercentile float64        `json:"reference_percentile"`

	// QualifiedMinimumRouteShare drops rows below this share after
	// scoring but before ranking. Zero disables the filter.
	QualifiedMinimumRouteShare float64 `json:"qualified_minimum_route_share"`
}

// DefaultConfig returns the canonical knob settings.
func DefaultConfig() Config {
	return Config{
		MinBaseYPRR:                0,
		EdgeClamp:                  0.25,
		MaxPenalty:                 0.8,
		PenaltyExponent:            2,
		FullConfidenceThreshold:    0.5,
		ZeroConfidenceThreshold:    0.05,
		RouteShareMode:             RouteShareFixed,
		RouteShareReference:        450,
		ReferencePercentile:        0.95,
		QualifiedMinimumRouteShare: 0,
	}
}

// Validate rejects configurations that would produce nonsensical
// penalties or divisions by zero at scoring time.
func (c Config) Validate() error {
	if c.MinBaseYPRR < 0 {
		return fmt.Errorf("%w: min_base_yprr must be >= 0, got %v", ErrInvalidConfig, c.MinBaseYPRR)
	}
	if c.EdgeClamp <= 0 {
		return fmt.Errorf("%w: edge_clamp must be > 0, got %v", ErrInvalidConfig, c.EdgeClamp)
	}
	if c.MaxPenalty < 0 || c.MaxPenalty > 1 {
		return fmt.Errorf("%w: max_penalty must be within [0,1], got %v", ErrInvalidConfig, c.MaxPenalty)
	}
	if c.PenaltyExponent < 1 {
		return fmt.Errorf("%w: penalty_exponent must be >= 1, got %v", ErrInvalidConfig, c.PenaltyExponent)
	}
	if c.ZeroConfidenceThreshold < 0 {
		return fmt.Errorf("%w: zero_confidence_threshold must be >= 0, got %v", ErrInvalidConfig, c.ZeroConfidenceThreshold)
	}
	if c.ZeroConfidenceThreshold >= c.FullConfidenceThreshold {
		return fmt.Errorf("%w: zero_confidence_threshold (%v) must be below full_confidence_threshold (%v)",
			ErrInvalidConfig, c.ZeroConfidenceThreshold, c.FullConfidenceThreshold)
	}
	switch c.RouteShareMode {
	case RouteShareFixed:
		if c.RouteShareReference <= 0 {
			return fmt.Errorf("%w: route_share_reference must be > 0 in fixed mode, got %v",
				ErrInvalidConfig, c.RouteShareReference)
		}
	case RouteSharePercentile:
		if c.ReferencePercentile <= 0 || c.ReferencePercentile > 1 {
			return fmt.Errorf("%w: reference_percentile must be within (0,1], got %v",
				ErrInvalidConfig, c.ReferencePercentile)
		}
	default:
		return fmt.Errorf("%w: unknown route_share_mode %q", ErrInvalidConfig, c.RouteShareMode)
	}
	if c.QualifiedMinimumRouteShare < 0 || c.QualifiedMinimumRouteShare >= 1 {
		return fmt.Errorf("%w: qualified_minimum_route_share must be within [0,1), got %v",
			ErrInvalidConfig, c.QualifiedMinimumRouteShare)
	}
	return nil
}
