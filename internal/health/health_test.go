package health

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type probeFunc func(ctx context.Context) error

func (f probeFunc) Ping(ctx context.Context) error { return f(ctx) }

var (
	up   = probeFunc(func(context.Context) error { return nil })
	down = probeFunc(func(context.Context) error { return errors.New("connection refused") })
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name      string
		nansen    Prober
		typefully Prober
		healthy   bool
		probed    bool
	}{
		{"all up", up, up, true, true},
		{"nansen down", down, up, false, true},
		{"typefully down", up, down, false, true},
		{"typefully not configured", up, nil, true, false},
		{"nansen down without typefully", down, nil, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := NewChecker(tt.nansen, tt.typefully, zap.NewNop()).Check(context.Background())
			assert.Equal(t, tt.healthy, status.Healthy())
			assert.Equal(t, tt.probed, status.Typefully != nil)
		})
	}
}

func TestCheckLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	NewChecker(down, down, zap.New(core)).Check(context.Background())
	assert.Equal(t, 1, logs.FilterMessage("Nansen health check failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("Typefully health check failed").Len())
}

func TestStatusJSON(t *testing.T) {
	c := NewChecker(up, nil, zap.NewNop())
	c.now = func() time.Time { return time.Date(2026, 3, 7, 8, 0, 0, 0, time.UTC) }

	data, err := json.Marshal(c.Check(context.Background()))
	require.NoError(t, err)
	assert.JSONEq(t, `{"nansen":true,"timestamp":"2026-03-07T08:00:00Z"}`, string(data))
}
