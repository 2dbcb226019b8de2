package models

import "time"

type SentimentRequest struct {
	Text []string `json:"text"`
}

type Sentiment struct {
	Label string  `json:"label"` // POSITIVE or NEGATIVE for the sst2 model
	Score float64 `json:"score"`
}

// SentimentResponse holds one prediction list per input text, in input order.
type SentimentResponse struct {
	Predictions [][]Sentiment `json:"predictions"`
}

type PredictionEvent struct {
	RequestID string    `json:"request_id"`
	CacheKey  string    `json:"cache_key"`
	Count     int       `json:"count"`
	TopLabels []string  `json:"top_labels"`
	CreatedAt time.Time `json:"created_at"`
}
