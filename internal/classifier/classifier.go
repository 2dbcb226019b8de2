// Package classifier wraps batch text-classification models behind a single
// interface. Implementations return one ranked score list per input text.
package classifier

import (
	"context"
	"errors"
	"sort"
)

const (
	LABEL_POSITIVE = "POSITIVE"
	LABEL_NEGATIVE = "NEGATIVE"
)

var ErrModelUnavailable = errors.New("model not loaded")

type Score struct {
	Label string
	Score float64
}

// Classifier scores a batch of texts. The result is aligned index for index
// with texts, and each inner slice covers every label the model knows,
// highest score first. Callers must pass at least one text.
type Classifier interface {
	Classify(ctx context.Context, texts []string) ([][]Score, error)
}

func rank(scores []Score) []Score {
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	return scores
}
