package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*NflverseClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	client := NewNflverseClient(NflverseConfig{
		ReceiverURL:    server.URL + "/receivers.csv",
		DefenseURL:     server.URL + "/defenses.csv",
		MatchupURL:     server.URL + "/matchups.csv",
		RequestsPerSec: 100,
	}, logger)
	return client, server
}

func TestFetchReceiverSplits(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/receivers.csv", r.URL.Path)
		w.Write([]byte("player,team,base_yprr,routes_played\nA.J. Brown,PHI,2.4,310\n"))
	})

	rows, err := client.FetchReceiverSplits(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "A.J. Brown", rows[0].Player)
}

func TestFetchDefenseProfiles(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("team,man_pct,zone_pct,one_high_pct,two_high_pct,zero_high_pct,blitz_pct\nPHI,60,40,30,30,40,20\n"))
	})

	defenses, err := client.FetchDefenseProfiles(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.6, defenses["PHI"].ManPct, 1e-9)
}

func TestFetchMatchups(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("team,opponent\nPHI,DAL\n"))
	})

	schedule, err := client.FetchMatchups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "DAL", schedule["PHI"])
}

func TestFetchSurfacesUpstreamErrors(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone fishing", http.StatusBadGateway)
	})

	_, err := client.FetchReceiverSplits(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestCircuitBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	client := NewNflverseClient(NflverseConfig{
		ReceiverURL:      server.URL,
		RequestsPerSec:   100,
		BreakerThreshold: 2,
	}, logger)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := client.FetchReceiverSplits(ctx)
		require.Error(t, err)
	}

	// Once the breaker opens, requests stop reaching the server.
	assert.Equal(t, 2, calls)
}

func TestFetchWithoutURL(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	client := NewNflverseClient(NflverseConfig{}, logger)

	_, err := client.FetchMatchups(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no source url configured")
}
