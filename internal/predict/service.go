// Package predict implements the bulk-predict flow independent of HTTP:
// validate, look up the response cache, classify on a miss, store, respond.
package predict

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spacesedan/mlapi/internal/cache"
	"github.com/spacesedan/mlapi/internal/classifier"
	"github.com/spacesedan/mlapi/internal/logging"
	"github.com/spacesedan/mlapi/internal/models"
	"github.com/spacesedan/mlapi/internal/validation"
)

const ENDPOINT = "bulk-predict"

// EventPublisher receives an event for every freshly computed response.
type EventPublisher interface {
	PublishPrediction(event models.PredictionEvent) error
}

type Options struct {
	CachePrefix  string
	CacheTimeout time.Duration
	// Publisher is optional.
	Publisher EventPublisher
}

type Service struct {
	classifier classifier.Classifier
	keyPrefix  string
	publisher  EventPublisher
	handle     cache.Func[models.SentimentRequest]
}

func NewService(c classifier.Classifier, store cache.Store, opts Options) *Service {
	s := &Service{
		classifier: c,
		keyPrefix:  opts.CachePrefix,
		publisher:  opts.Publisher,
	}

	cached := cache.Wrap(store, s.cacheKey, cache.Options{
		TTL:     cache.TTL,
		Timeout: opts.CacheTimeout,
	})
	s.handle = cached(s.predict)
	return s
}

// Handle validates a raw bulk-predict body and returns the serialized
// SentimentResponse. Validation failures are *validation.Error and happen
// before any cache or model work. A cached response is returned byte for
// byte as it was first produced.
func (s *Service) Handle(ctx context.Context, body []byte) ([]byte, error) {
	req, err := validation.Validate(body)
	if err != nil {
		slog.Info("[Predict] Rejected invalid request",
			logging.RequestAttr(ctx),
			slog.String("error", err.Error()))
		return nil, err
	}

	return s.handle(ctx, req)
}

func (s *Service) cacheKey(req models.SentimentRequest) string {
	return cache.Key(s.keyPrefix, ENDPOINT, req.Text)
}

func (s *Service) predict(ctx context.Context, req models.SentimentRequest) ([]byte, error) {
	if s.classifier == nil {
		return nil, classifier.ErrModelUnavailable
	}

	start := time.Now()
	raw, err := s.classifier.Classify(ctx, req.Text)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}
	if len(raw) != len(req.Text) {
		return nil, fmt.Errorf("classifier returned %d results for %d inputs", len(raw), len(req.Text))
	}

	resp := toResponse(raw)
	body, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	slog.Info("[Predict] Batch classified",
		logging.RequestAttr(ctx),
		slog.Int("batch_size", len(req.Text)),
		slog.Duration("elapsed", time.Since(start)))

	s.publish(ctx, req, resp)
	return body, nil
}

func toResponse(raw [][]classifier.Score) models.SentimentResponse {
	predictions := make([][]models.Sentiment, len(raw))
	for i, scores := range raw {
		sentiments := make([]models.Sentiment, 0, len(scores))
		for _, score := range scores {
			sentiments = append(sentiments, models.Sentiment{
				Label: score.Label,
				Score: score.Score,
			})
		}
		predictions[i] = sentiments
	}
	return models.SentimentResponse{Predictions: predictions}
}

func (s *Service) publish(ctx context.Context, req models.SentimentRequest, resp models.SentimentResponse) {
	if s.publisher == nil {
		return
	}

	topLabels := make([]string, len(resp.Predictions))
	for i, sentiments := range resp.Predictions {
		if len(sentiments) > 0 {
			topLabels[i] = sentiments[0].Label
		}
	}

	event := models.PredictionEvent{
		RequestID: logging.RequestID(ctx),
		CacheKey:  s.cacheKey(req),
		Count:     len(req.Text),
		TopLabels: topLabels,
		CreatedAt: time.Now().UTC(),
	}

	go func() {
		if err := s.publisher.PublishPrediction(event); err != nil {
			slog.Warn("[Predict] Failed to publish prediction event",
				slog.String("request_id", event.RequestID),
				slog.String("error", err.Error()))
		}
	}()
}
