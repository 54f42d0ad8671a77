// internal/health/health.go
package health

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Prober performs a single liveness request against an upstream API.
type Prober interface {
	Ping(ctx context.Context) error
}

// Status is the health report printed by --health-check. Typefully is nil
// when no key was configured and the service was not probed.
type Status struct {
	Nansen    bool      `json:"nansen"`
	Typefully *bool     `json:"typefully,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Healthy reports whether every probed service answered.
func (s Status) Healthy() bool {
	if !s.Nansen {
		return false
	}
	return s.Typefully == nil || *s.Typefully
}

// Checker probes the configured services.
type Checker struct {
	nansen    Prober
	typefully Prober
	now       func() time.Time
	logger    *zap.Logger
}

// NewChecker creates a checker. typefully may be nil to skip that probe.
func NewChecker(nansen, typefully Prober, logger *zap.Logger) *Checker {
	return &Checker{
		nansen:    nansen,
		typefully: typefully,
		now:       time.Now,
		logger:    logger.Named("health"),
	}
}

// Check runs the probes one after another.
func (c *Checker) Check(ctx context.Context) Status {
	status := Status{Timestamp: c.now()}

	if err := c.nansen.Ping(ctx); err != nil {
		c.logger.Warn("Nansen health check failed", zap.Error(err))
	} else {
		status.Nansen = true
	}

	if c.typefully != nil {
		ok := true
		if err := c.typefully.Ping(ctx); err != nil {
			c.logger.Warn("Typefully health check failed", zap.Error(err))
			ok = false
		}
		status.Typefully = &ok
	}

	return status
}
