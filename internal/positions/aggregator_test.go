package positions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubFetcher struct {
	mu     sync.Mutex
	calls  []string
	errs   map[string]error
	result map[string][]Position
}

func (s *stubFetcher) Fetch(_ context.Context, token string) ([]Position, error) {
	s.mu.Lock()
	s.calls = append(s.calls, token)
	s.mu.Unlock()
	if err := s.errs[token]; err != nil {
		return nil, err
	}
	return s.result[token], nil
}

func TestFetchAllKeepsOrderAndIsolatesFailures(t *testing.T) {
	fetcher := &stubFetcher{
		errs: map[string]error{"ETH": errors.New("failed to fetch ETH after 3 attempts")},
		result: map[string][]Position{
			"BTC":  {{Side: SideLong, PositionValueUSD: 10}},
			"SOL":  {{Side: SideShort, PositionValueUSD: 5}},
			"HYPE": {},
		},
	}
	core, logs := observer.New(zap.InfoLevel)
	agg := NewAggregator(fetcher, 1, nil, zap.New(core))

	tokens := []string{"BTC", "ETH", "SOL", "HYPE"}
	results := agg.FetchAll(context.Background(), tokens)

	assert.Equal(t, tokens, fetcher.calls)
	assert.Equal(t, tokens, results.Tokens())

	eth, ok := results.Get("ETH")
	require.True(t, ok)
	assert.False(t, eth.OK())
	assert.Nil(t, eth.Positions)
	assert.EqualError(t, eth.Err, "failed to fetch ETH after 3 attempts")

	for _, token := range []string{"BTC", "SOL", "HYPE"} {
		r, ok := results.Get(token)
		require.True(t, ok, token)
		assert.True(t, r.OK(), token)
	}
	assert.Len(t, results.Succeeded(), 3)
	assert.Len(t, results.Failed(), 1)
	assert.Equal(t, 1, logs.FilterMessage("Completed with errors").Len())
	assert.Equal(t, 1, logs.FilterMessage("Failed to fetch token").Len())
}

func TestFetchAllEmptyTokenList(t *testing.T) {
	agg := NewAggregator(&stubFetcher{}, 1, nil, zap.NewNop())
	results := agg.FetchAll(context.Background(), nil)
	assert.Empty(t, results)
}

func TestFetchAllConcurrentMatchesSequential(t *testing.T) {
	tokens := []string{"BTC", "ETH", "SOL", "HYPE", "DOGE"}
	build := func() *stubFetcher {
		return &stubFetcher{
			errs: map[string]error{"SOL": errors.New("boom")},
			result: map[string][]Position{
				"BTC":  {{Address: "btc"}},
				"ETH":  {{Address: "eth"}},
				"HYPE": {{Address: "hype"}},
				"DOGE": {{Address: "doge"}},
			},
		}
	}

	sequential := NewAggregator(build(), 1, nil, zap.NewNop()).FetchAll(context.Background(), tokens)
	concurrent := NewAggregator(build(), 3, nil, zap.NewNop()).FetchAll(context.Background(), tokens)

	require.Len(t, concurrent, len(sequential))
	for i := range sequential {
		assert.Equal(t, sequential[i].Token, concurrent[i].Token)
		assert.Equal(t, sequential[i].OK(), concurrent[i].OK())
		assert.Equal(t, sequential[i].Positions, concurrent[i].Positions)
	}
}

func TestFetchAllWithClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req positionsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch req.TokenSymbol {
		case "ETH":
			http.Error(w, "unknown token", http.StatusNotFound)
		case "SOL":
			http.Error(w, "upstream down", http.StatusInternalServerError)
		default:
			_, _ = w.Write([]byte(`{"data":[{"side":"Long","address":"0x1","position_value_usd":1}]}`))
		}
	}))
	defer server.Close()

	rec := newFakeRecorder()
	client := NewClient(Options{URL: server.URL, InitialBackoff: time.Millisecond, Recorder: rec}, zap.NewNop())
	results := NewAggregator(client, 1, rec, zap.NewNop()).FetchAll(context.Background(), []string{"BTC", "ETH", "SOL", "HYPE"})

	require.Len(t, results, 4)
	assert.True(t, results[0].OK())
	assert.False(t, results[1].OK())
	assert.False(t, results[2].OK())
	assert.True(t, results[3].OK())

	assert.True(t, strings.HasPrefix(results[1].Err.Error(), "fetch ETH: nansen http 404"))
	assert.Contains(t, results[2].Err.Error(), "failed to fetch SOL after 3 attempts")

	assert.Equal(t, map[string]bool{"BTC": true, "ETH": false, "SOL": false, "HYPE": true}, rec.tokens)
	assert.Len(t, rec.attempts["SOL"], 3)
	assert.Len(t, rec.attempts["ETH"], 1)
}
