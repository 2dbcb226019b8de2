package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/spacesedan/mlapi/internal/utils"
)

const pipelineName = "sentimentPipeline"

type ONNXOptions struct {
	ModelPath string
	ModelName string
	Runtime   string
	// LibraryPath locates the onnxruntime shared library.
	LibraryPath string
	Download    bool
	BatchSize   int
}

// ONNXClassifier runs an exported sequence classification model through a
// hugot text classification pipeline. Every label is scored (softmax over
// the logits) rather than only the arg max.
type ONNXClassifier struct {
	mu        sync.RWMutex
	session   *hugot.Session
	pipeline  *pipelines.TextClassificationPipeline
	batchSize int
}

func NewONNXClassifier(opts ONNXOptions) (*ONNXClassifier, error) {
	modelPath, err := ensureModel(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	session, err := newSession(opts.Runtime, opts.LibraryPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize hugot session: %v", ErrModelUnavailable, err)
	}

	config := hugot.TextClassificationConfig{
		ModelPath: modelPath,
		Name:      pipelineName,
	}
	config.Options = append(config.Options,
		pipelines.WithMultiLabel(),
		pipelines.WithSoftmax(),
	)

	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			slog.Warn("[ONNXClassifier] Failed to destroy session",
				slog.String("error", destroyErr.Error()))
		}
		return nil, fmt.Errorf("%w: failed to initialize pipeline: %v", ErrModelUnavailable, err)
	}

	batchSize := opts.BatchSize
	if batchSize < 1 {
		batchSize = utils.BATCH_SIZE
	}

	slog.Info("[ONNXClassifier] Model loaded",
		slog.String("path", modelPath),
		slog.String("runtime", opts.Runtime),
		slog.Int("batch_size", batchSize))

	return &ONNXClassifier{
		session:   session,
		pipeline:  pipeline,
		batchSize: batchSize,
	}, nil
}

func (c *ONNXClassifier) Classify(ctx context.Context, texts []string) ([][]Score, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.pipeline == nil {
		return nil, ErrModelUnavailable
	}

	start := time.Now()
	results := make([][]Score, 0, len(texts))
	for _, chunk := range utils.Chunk(texts, c.batchSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		output, err := c.pipeline.RunPipeline(chunk)
		if err != nil {
			return nil, fmt.Errorf("inference failed: %w", err)
		}
		if len(output.ClassificationOutputs) != len(chunk) {
			return nil, fmt.Errorf("inference returned %d results for %d inputs",
				len(output.ClassificationOutputs), len(chunk))
		}

		for _, item := range output.ClassificationOutputs {
			scores := make([]Score, 0, len(item))
			for _, class := range item {
				scores = append(scores, Score{Label: class.Label, Score: float64(class.Score)})
			}
			results = append(results, rank(scores))
		}
	}

	slog.Debug("[ONNXClassifier] Batch classified",
		slog.Int("batch_size", len(texts)),
		slog.Duration("elapsed", time.Since(start)))

	return results, nil
}

// Close releases the pipeline and its session. Later Classify calls fail
// with ErrModelUnavailable.
func (c *ONNXClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}
	c.pipeline = nil
	err := c.session.Destroy()
	c.session = nil
	return err
}

// downloadModel fetches a model from the Hugging Face hub into dir and
// returns the directory it was written to.
var downloadModel = func(name, dir string) (string, error) {
	return hugot.DownloadModel(name, dir, hugot.NewDownloadOptions())
}

// ensureModel returns opts.ModelPath, downloading the model there first when
// it is missing and downloads are enabled.
func ensureModel(opts ONNXOptions) (string, error) {
	if _, err := os.Stat(opts.ModelPath); err == nil {
		slog.Info("[ONNXClassifier] Using existing model", slog.String("path", opts.ModelPath))
		return opts.ModelPath, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to stat model path: %w", err)
	}

	if !opts.Download {
		return "", fmt.Errorf("model not found at %s", opts.ModelPath)
	}

	modelDir := filepath.Dir(opts.ModelPath)
	if err := os.MkdirAll(modelDir, os.ModePerm); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}

	// hugot names the download after the repo, so stage it and move it to
	// ModelPath for the next start to find
	staging, err := os.MkdirTemp(modelDir, ".model-download-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	slog.Info("[ONNXClassifier] Model not found, downloading...",
		slog.String("model", opts.ModelName))
	downloaded, err := downloadModel(opts.ModelName, staging)
	if err != nil {
		return "", fmt.Errorf("failed to download model %s: %w", opts.ModelName, err)
	}
	if err := os.Rename(downloaded, opts.ModelPath); err != nil {
		return "", fmt.Errorf("failed to move model to %s: %w", opts.ModelPath, err)
	}
	slog.Info("[ONNXClassifier] Model downloaded successfully", slog.String("path", opts.ModelPath))

	return opts.ModelPath, nil
}
