package compose

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"tarotvision/internal/embedding"
	"tarotvision/internal/logging"
	"tarotvision/internal/rank"
)

// scoreConcurrency bounds parallel embedding calls per pool.
const scoreConcurrency = 4

// scorePassages attaches semantic similarity scores to a passage pool by
// embedding the question and each passage under a bounded timeout. Any
// failure leaves the pool unscored; the caller falls back to keyword
// ranking. This is the one suspension point in an otherwise CPU-only
// pipeline.
func scorePassages(
	ctx context.Context,
	engine embedding.Engine,
	query string,
	pool []rank.Passage,
	timeout time.Duration,
) ([]rank.Passage, error) {
	if engine == nil {
		return nil, fmt.Errorf("no embedding engine configured")
	}
	if query == "" || len(pool) == 0 {
		return pool, nil
	}

	timer := logging.StartTimer(logging.CategoryEmbedding, "scorePassages")
	defer timer.Stop()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	queryVec, err := engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	scored := make([]rank.Passage, len(pool))
	copy(scored, pool)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scoreConcurrency)

	for i := range scored {
		g.Go(func() error {
			vec, err := engine.Embed(gctx, scored[i].Text)
			if err != nil {
				return fmt.Errorf("failed to embed passage %d: %w", i, err)
			}
			sim, err := embedding.CosineSimilarity(queryVec, vec)
			if err != nil {
				return err
			}
			scored[i].SemanticScore = &sim
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	logging.EmbeddingDebug("Scored %d passages semantically", len(scored))
	return scored, nil
}
