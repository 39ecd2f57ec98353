package iqnews

import (
	"time"

	"github.com/google/uuid"
)

// Sentiment classifies the tone of a news article toward the companies it
// mentions.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"

	// SentimentUnknown is only ever attached to error-flagged stubs whose
	// analysis failed outright.
	SentimentUnknown Sentiment = "unknown"
)

// RawArticle is a single article as extracted from the listing site. The
// published_at string is kept verbatim in the site's own format; the pair
// (headline, published_at) is the article's identity everywhere downstream.
type RawArticle struct {
	ID          uuid.UUID `json:"id"`
	Headline    string    `json:"headline"`
	Link        string    `json:"link"`
	PublishedAt string    `json:"published_at"`
	Content     string    `json:"content"`
	ExtractedAt time.Time `json:"extracted_at"`
	Source      string    `json:"source"`
}

// EnrichedArticle is a RawArticle plus the sentiment analysis. An article is
// never partially enriched: either every analysis field is set, or Error is
// non-empty and the analysis fields hold safe defaults.
type EnrichedArticle struct {
	RawArticle

	Sentiment   Sentiment `json:"sentiment"`
	Confidence  float64   `json:"confidence"`
	Tickers     []string  `json:"tickers"`
	Reasoning   string    `json:"reasoning"`
	Summary     string    `json:"summary"`
	ProcessedAt time.Time `json:"processed_at"`
	Error       string    `json:"error,omitempty"`
}

// NewErrorStub builds the error-flagged enrichment recorded when an
// article's analysis failed outright. Every analysis field holds a safe
// default so downstream consumers never see a partially enriched article.
func NewErrorStub(article RawArticle, errMsg string, processedAt time.Time) EnrichedArticle {
	return EnrichedArticle{
		RawArticle:  article,
		Sentiment:   SentimentUnknown,
		Confidence:  0,
		Tickers:     []string{},
		Reasoning:   "Error: " + errMsg,
		Summary:     "Error memproses berita: " + article.Headline,
		ProcessedAt: processedAt,
		Error:       errMsg,
	}
}

// FinalRecord is an EnrichedArticle as stored in the final collection.
type FinalRecord struct {
	EnrichedArticle

	FinalLoadedAt  time.Time  `json:"final_loaded_at"`
	ProcessingDate string     `json:"processing_date"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// TickerCount is one entry of a daily top-tickers ranking.
type TickerCount struct {
	Ticker string `json:"ticker"`
	Count  int    `json:"count"`
}

// DailyAnalytics aggregates the final records of a single processing date.
// It is recomputed from scratch on every load run and upserted by date.
type DailyAnalytics struct {
	Date                  string             `json:"date"`
	TotalNews             int                `json:"total_news"`
	SentimentDistribution map[Sentiment]int  `json:"sentiment_distribution"`
	SentimentPercentage   map[string]float64 `json:"sentiment_percentage"`
	AverageConfidence     float64            `json:"average_confidence"`
	TopTickers            []TickerCount      `json:"top_tickers"`
	GeneratedAt           time.Time          `json:"generated_at"`
}

// LoadResult reports what a load run did with each processed record.
type LoadResult struct {
	Inserted       int `json:"inserted"`
	Updated        int `json:"updated"`
	Skipped        int `json:"skipped"`
	TotalProcessed int `json:"total_processed"`
}
