// Package providers fetches published stat CSVs so a dataset can be
// assembled without a manual upload.
package providers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/jstittsworth/matchup-engine/internal/ingest"
	"github.com/jstittsworth/matchup-engine/internal/matchup"
)

// NflverseClient pulls receiver-split, defense-tendency, and schedule
// CSVs from configured release URLs. Requests share a rate limiter and
// a circuit breaker so a flaky upstream can't stall uploads.
type NflverseClient struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker
	logger      *logrus.Logger
	receiverURL string
	defenseURL  string
	matchupURL  string
}

// NflverseConfig carries the endpoints and guard settings.
type NflverseConfig struct {
	ReceiverURL      string
	DefenseURL       string
	MatchupURL       string
	RequestsPerSec   float64
	BreakerThreshold uint32
	Timeout          time.Duration
}

func NewNflverseClient(cfg NflverseConfig, logger *logrus.Logger) *NflverseClient {
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 2
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "nflverse",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &NflverseClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		breaker:     breaker,
		logger:      logger,
		receiverURL: cfg.ReceiverURL,
		defenseURL:  cfg.DefenseURL,
		matchupURL:  cfg.MatchupURL,
	}
}

// FetchReceiverSplits downloads and decodes the receiver table.
func (c *NflverseClient) FetchReceiverSplits(ctx context.Context) ([]matchup.ReceiverSplit, error) {
	body, err := c.fetchCSV(ctx, c.receiverURL)
	if err != nil {
		return nil, err
	}
	return ingest.ReadReceiverSplits(body)
}

// FetchDefenseProfiles downloads and decodes the defense table.
func (c *NflverseClient) FetchDefenseProfiles(ctx context.Context) (map[string]matchup.DefenseProfile, error) {
	body, err := c.fetchCSV(ctx, c.defenseURL)
	if err != nil {
		return nil, err
	}
	return ingest.ReadDefenseProfiles(body)
}

// FetchMatchups downloads and decodes the weekly schedule.
func (c *NflverseClient) FetchMatchups(ctx context.Context) (map[string]string, error) {
	body, err := c.fetchCSV(ctx, c.matchupURL)
	if err != nil {
		return nil, err
	}
	return ingest.ReadMatchups(body)
}

func (c *NflverseClient) fetchCSV(ctx context.Context, url string) (io.Reader, error) {
	if url == "" {
		return nil, fmt.Errorf("no source url configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("User-Agent", "matchup-engine/1.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("get csv %s: %w", url, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, fmt.Errorf("csv download %s: %s (%s)", url, resp.Status, string(snippet))
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read csv body: %w", err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithField("url", url).Debug("Fetched CSV")
	return bytes.NewReader(result.([]byte)), nil
}
