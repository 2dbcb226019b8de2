package classifier

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"
)

// Guarded bounds the number of concurrent Classify calls reaching the wrapped
// classifier. A limit of 1 serializes access to a model that is not safe for
// reentrant use.
type Guarded struct {
	next Classifier
	sem  *semaphore.Weighted
}

func Guard(next Classifier, limit int) *Guarded {
	if limit < 1 {
		limit = 1
	}
	return &Guarded{
		next: next,
		sem:  semaphore.NewWeighted(int64(limit)),
	}
}

func (g *Guarded) Classify(ctx context.Context, texts []string) ([][]Score, error) {
	if g.next == nil {
		return nil, ErrModelUnavailable
	}

	start := time.Now()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer g.sem.Release(1)

	if waited := time.Since(start); waited > time.Second {
		slog.Warn("[Classifier] Waited for inference slot",
			slog.Duration("waited", waited),
			slog.Int("batch_size", len(texts)))
	}

	return g.next.Classify(ctx, texts)
}
