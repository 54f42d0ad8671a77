// internal/positions/aggregator.go
package positions

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Fetcher fetches positions for a single token. *Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, token string) ([]Position, error)
}

// Aggregator runs a Fetcher over the configured tokens and collects one
// Result per token. A token's failure never aborts the batch.
type Aggregator struct {
	fetcher     Fetcher
	concurrency int
	recorder    Recorder
	logger      *zap.Logger
}

// NewAggregator creates an aggregator. concurrency <= 1 fetches tokens one
// after another; larger values fetch up to that many tokens at once.
func NewAggregator(fetcher Fetcher, concurrency int, recorder Recorder, logger *zap.Logger) *Aggregator {
	if concurrency < 1 {
		concurrency = 1
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Aggregator{
		fetcher:     fetcher,
		concurrency: concurrency,
		recorder:    recorder,
		logger:      logger.Named("aggregator"),
	}
}

// FetchAll returns exactly one Result per token, in input order.
func (a *Aggregator) FetchAll(ctx context.Context, tokens []string) Aggregate {
	results := make(Aggregate, len(tokens))

	if a.concurrency == 1 {
		for i, token := range tokens {
			results[i] = a.fetchOne(ctx, token)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(a.concurrency)
		for i, token := range tokens {
			g.Go(func() error {
				results[i] = a.fetchOne(ctx, token)
				return nil
			})
		}
		_ = g.Wait()
	}

	if failed := results.Failed(); len(failed) > 0 {
		a.logger.Warn("Completed with errors",
			zap.Int("errors", len(failed)),
			zap.Int("tokens", len(tokens)))
	}
	return results
}

func (a *Aggregator) fetchOne(ctx context.Context, token string) Result {
	a.logger.Info("Fetching token", zap.String("token", token))

	ps, err := a.fetcher.Fetch(ctx, token)
	if err != nil {
		a.logger.Error("Failed to fetch token", zap.String("token", token), zap.Error(err))
		a.recorder.ObserveToken(token, false)
		return Failed(token, err)
	}

	a.logger.Info("Fetched positions",
		zap.String("token", token),
		zap.Int("positions", len(ps)))
	a.recorder.ObserveToken(token, true)
	return Succeeded(token, ps)
}
