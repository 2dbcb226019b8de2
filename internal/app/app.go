// Package app wires configuration into a running bulk-predict service and
// owns its startup and shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spacesedan/mlapi/config"
	"github.com/spacesedan/mlapi/internal/api"
	"github.com/spacesedan/mlapi/internal/cache"
	"github.com/spacesedan/mlapi/internal/classifier"
	"github.com/spacesedan/mlapi/internal/clients"
	"github.com/spacesedan/mlapi/internal/clients/kafka_client"
	"github.com/spacesedan/mlapi/internal/monitoring"
	"github.com/spacesedan/mlapi/internal/predict"
)

const (
	CLASSIFIER_ONNX  = "onnx"
	CLASSIFIER_VADER = "vader"

	CACHE_VALKEY   = "valkey"
	CACHE_DYNAMODB = "dynamodb"
	CACHE_MEMORY   = "memory"
	CACHE_NONE     = "none"

	READ_HEADER_TIMEOUT = 10 * time.Second
)

var ErrUnknownBackend = errors.New("unknown backend")

type App struct {
	cfg      config.Config
	server   *http.Server
	closers  []func()
	listener net.Listener
	// probe is set for cache backends that can be health checked.
	probe monitoring.Prober
}

// New loads the model, opens the cache and builds the HTTP server. A model
// that cannot be loaded or a malformed cache address is a startup error; an
// unreachable cache is not.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{cfg: cfg}

	c, err := a.newClassifier()
	if err != nil {
		a.Close()
		return nil, err
	}

	store, err := a.newStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	if probe, ok := store.(monitoring.Prober); ok {
		a.probe = probe
	}

	svc := predict.NewService(
		classifier.Guard(c, cfg.Classifier.Concurrency),
		store,
		predict.Options{
			CachePrefix:  cfg.Cache.Prefix,
			CacheTimeout: cfg.Cache.Timeout,
			Publisher:    a.newPublisher(),
		},
	)

	a.server = &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.NewRouter(cfg.Server.APIPrefix, svc),
		ReadHeaderTimeout: READ_HEADER_TIMEOUT,
	}

	slog.Info("[App] Initialized",
		slog.String("classifier", cfg.Classifier.Backend),
		slog.String("cache", cfg.Cache.Backend),
		slog.String("prefix", cfg.Server.APIPrefix))
	return a, nil
}

func (a *App) newClassifier() (classifier.Classifier, error) {
	switch a.cfg.Classifier.Backend {
	case CLASSIFIER_ONNX:
		c, err := classifier.NewONNXClassifier(classifier.ONNXOptions{
			ModelPath:   a.cfg.Classifier.ModelPath,
			ModelName:   a.cfg.Classifier.ModelName,
			Runtime:     a.cfg.Classifier.Runtime,
			LibraryPath: a.cfg.Classifier.LibraryPath,
			Download:    a.cfg.Classifier.Download,
			BatchSize:   a.cfg.Classifier.BatchSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load classifier: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := c.Close(); err != nil {
				slog.Warn("[App] Failed to release model session",
					slog.String("error", err.Error()))
			}
		})
		return c, nil
	case CLASSIFIER_VADER:
		return classifier.NewVaderClassifier(), nil
	default:
		return nil, fmt.Errorf("%w: classifier %q", ErrUnknownBackend, a.cfg.Classifier.Backend)
	}
}

func (a *App) newStore(ctx context.Context) (cache.Store, error) {
	switch a.cfg.Cache.Backend {
	case CACHE_VALKEY:
		client, err := clients.NewValkeyClient(a.cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to configure cache: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return cache.NewValkeyStore(client), nil
	case CACHE_DYNAMODB:
		client, err := clients.NewDynamoDBClient(ctx, a.cfg.AWS.Region, a.cfg.AWS.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to configure cache: %w", err)
		}
		return cache.NewDynamoDBStore(client, a.cfg.Cache.DynamoTable), nil
	case CACHE_MEMORY:
		return cache.NewMemoryStore(), nil
	case CACHE_NONE:
		slog.Warn("[App] Response cache disabled")
		return cache.NopStore{}, nil
	default:
		return nil, fmt.Errorf("%w: cache %q", ErrUnknownBackend, a.cfg.Cache.Backend)
	}
}

// newPublisher returns nil when Kafka is not configured or unreachable; the
// service then runs without prediction events.
func (a *App) newPublisher() predict.EventPublisher {
	if a.cfg.Kafka.Broker == "" {
		return nil
	}

	producer, err := kafka_client.NewProducer(a.cfg.Kafka.Broker, a.cfg.Kafka.PredictionTopic)
	if err != nil {
		slog.Warn("[App] Prediction events disabled",
			slog.String("error", err.Error()))
		return nil
	}
	a.closers = append(a.closers, producer.Close)
	return producer
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run serves until ctx is cancelled, then drains in-flight requests for up to
// the configured shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.server.Addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", a.server.Addr, err)
		}
	}

	if a.probe != nil {
		go monitoring.MonitorCacheHealth(ctx, a.probe, monitoring.HEALTHCHECK_TIMER)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("[App] Listening", slog.String("addr", ln.Addr().String()))
		errCh <- a.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("[App] Shutting down",
		slog.Duration("timeout", a.cfg.Server.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("[App] Server stopped")
	return nil
}

// Close releases the publisher, cache connection and model session, in the
// reverse order they were opened. It is safe to call more than once.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
