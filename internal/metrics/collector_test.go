package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/hyperfeed/internal/positions"
)

var _ positions.Recorder = (*Collector)(nil)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()

	c.ObserveAttempt("BTC", positions.OutcomeRetryable)
	c.ObserveAttempt("BTC", positions.OutcomeSuccess)
	c.ObserveAttempt("ETH", positions.OutcomePermanent)
	c.ObserveToken("BTC", true)
	c.ObserveToken("ETH", false)
	c.ObserveFetch("BTC", 1500*time.Millisecond)
	c.ObserveUpload(true)
	c.ObservePublished(5)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.fetchAttempts.WithLabelValues("BTC", positions.OutcomeRetryable)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.fetchAttempts.WithLabelValues("ETH", positions.OutcomePermanent)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tokens.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.tokens.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.mediaUploads.WithLabelValues("success")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.postsPublished))
	assert.Equal(t, 1, testutil.CollectAndCount(c.fetchDuration))

	c.Reset()
	assert.Equal(t, 0, testutil.CollectAndCount(c.fetchAttempts))
}

func TestCollectorsAreIndependent(t *testing.T) {
	a, b := NewCollector(), NewCollector()
	a.ObservePublished(3)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.postsPublished))
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector()
	c.ObserveToken("BTC", true)

	path := filepath.Join(t.TempDir(), "textfile", "hyperfeed.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `hyperfeed_tokens_total{status="success"} 1`))
}
