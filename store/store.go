// Package store persists pipeline records in SQLite. Each pipeline
// collection (raw, processed, final, analytics) is a table of JSON documents
// keyed by the article's natural identity (headline, published_at), or by
// date for analytics.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pevans/iqnews"
)

// Store manages the four pipeline collections. One Store is opened per
// pipeline stage and closed once the stage's writes are done.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (and if necessary initializes) the document store at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Another stage may hold the file briefly when runs overlap, so schema
	// init retries through transient SQLITE_BUSY errors.
	s := &Store{db: db, now: time.Now}
	if err := iqnews.WithRetry(context.Background(), 3, time.Second, s.initSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates the collection tables if they don't exist.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS raw_news (
		headline TEXT NOT NULL,
		published_at TEXT NOT NULL,
		doc TEXT NOT NULL,
		PRIMARY KEY (headline, published_at)
	);

	CREATE TABLE IF NOT EXISTS processed_news (
		headline TEXT NOT NULL,
		published_at TEXT NOT NULL,
		doc TEXT NOT NULL,
		PRIMARY KEY (headline, published_at)
	);

	CREATE TABLE IF NOT EXISTS final_news (
		headline TEXT NOT NULL,
		published_at TEXT NOT NULL,
		processing_date TEXT,
		doc TEXT NOT NULL,
		PRIMARY KEY (headline, published_at)
	);

	CREATE TABLE IF NOT EXISTS news_analytics (
		date TEXT PRIMARY KEY,
		doc TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertRaw inserts raw articles, skipping any whose (headline, published_at)
// key is already stored. It returns the number actually inserted. A failed
// write for a single article is logged and does not stop the rest.
func (s *Store) InsertRaw(articles []iqnews.RawArticle) (int, error) {
	inserted := 0
	for _, article := range articles {
		ok, err := s.insertDoc("raw_news", article.Headline, article.PublishedAt, article)
		if err != nil {
			slog.Error("failed to store raw article", "headline", article.Headline, "error", err)
			continue
		}
		if ok {
			inserted++
		} else {
			slog.Info("duplicate raw article skipped", "headline", article.Headline)
		}
	}
	return inserted, nil
}

// InsertProcessed inserts enriched articles into the processed collection
// with the same duplicate-skipping behavior as InsertRaw.
func (s *Store) InsertProcessed(articles []iqnews.EnrichedArticle) (int, error) {
	inserted := 0
	for _, article := range articles {
		ok, err := s.insertDoc("processed_news", article.Headline, article.PublishedAt, article)
		if err != nil {
			slog.Error("failed to store processed article", "headline", article.Headline, "error", err)
			continue
		}
		if ok {
			inserted++
		} else {
			slog.Info("duplicate processed article skipped", "headline", article.Headline)
		}
	}
	return inserted, nil
}

// insertDoc inserts one document unless its key already exists. It reports
// whether an insert happened.
func (s *Store) insertDoc(table, headline, publishedAt string, doc any) (bool, error) {
	var exists int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE headline = ? AND published_at = ?", table)
	if err := s.db.QueryRow(query, headline, publishedAt).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check for duplicate: %w", err)
	}
	if exists > 0 {
		return false, nil
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("failed to marshal document: %w", err)
	}

	insert := fmt.Sprintf("INSERT INTO %s (headline, published_at, doc) VALUES (?, ?, ?)", table)
	if _, err := s.db.Exec(insert, headline, publishedAt, data); err != nil {
		return false, fmt.Errorf("failed to insert document: %w", err)
	}
	return true, nil
}

// ListRaw returns every stored raw article.
func (s *Store) ListRaw() ([]iqnews.RawArticle, error) {
	rows, err := s.db.Query("SELECT doc FROM raw_news")
	if err != nil {
		return nil, fmt.Errorf("failed to query raw articles: %w", err)
	}
	defer rows.Close()

	var articles []iqnews.RawArticle
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan raw article: %w", err)
		}
		var article iqnews.RawArticle
		if err := json.Unmarshal(data, &article); err != nil {
			slog.Error("skipping corrupt raw article document", "error", err)
			continue
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

// ListProcessed returns every stored enriched article.
func (s *Store) ListProcessed() ([]iqnews.EnrichedArticle, error) {
	rows, err := s.db.Query("SELECT doc FROM processed_news")
	if err != nil {
		return nil, fmt.Errorf("failed to query processed articles: %w", err)
	}
	defer rows.Close()

	var articles []iqnews.EnrichedArticle
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan processed article: %w", err)
		}
		var article iqnews.EnrichedArticle
		if err := json.Unmarshal(data, &article); err != nil {
			slog.Error("skipping corrupt processed article document", "error", err)
			continue
		}
		articles = append(articles, article)
	}
	return articles, rows.Err()
}

// FindFinal looks up a final record by its identity key. It returns nil when
// no record exists (not an error).
func (s *Store) FindFinal(headline, publishedAt string) (*iqnews.FinalRecord, error) {
	var data []byte
	err := s.db.QueryRow(
		"SELECT doc FROM final_news WHERE headline = ? AND published_at = ?",
		headline, publishedAt,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query final record: %w", err)
	}

	var record iqnews.FinalRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal final record: %w", err)
	}
	return &record, nil
}

// UpsertFinal merges enriched articles into the final collection. Each
// record is inserted when absent, replaced when its sentiment or confidence
// differs from the stored version, and skipped otherwise. A failure on a
// single record is logged and counted as skipped work, not a stage failure.
func (s *Store) UpsertFinal(records []iqnews.EnrichedArticle, processingDate string) (iqnews.LoadResult, error) {
	result := iqnews.LoadResult{TotalProcessed: len(records)}

	for _, record := range records {
		existing, err := s.FindFinal(record.Headline, record.PublishedAt)
		if err != nil {
			slog.Error("failed to look up final record", "headline", record.Headline, "error", err)
			continue
		}

		now := s.now()
		final := iqnews.FinalRecord{
			EnrichedArticle: record,
			FinalLoadedAt:   now,
			ProcessingDate:  processingDate,
		}

		switch {
		case existing == nil:
			if err := s.writeFinal(final, false); err != nil {
				slog.Error("failed to insert final record", "headline", record.Headline, "error", err)
				continue
			}
			result.Inserted++
			slog.Info("inserted final record", "headline", record.Headline)

		case existing.Sentiment != record.Sentiment || existing.Confidence != record.Confidence:
			final.UpdatedAt = &now
			if err := s.writeFinal(final, true); err != nil {
				slog.Error("failed to update final record", "headline", record.Headline, "error", err)
				continue
			}
			result.Updated++
			slog.Info("updated final record", "headline", record.Headline)

		default:
			result.Skipped++
			slog.Info("skipped final record (no changes)", "headline", record.Headline)
		}
	}

	return result, nil
}

func (s *Store) writeFinal(record iqnews.FinalRecord, replace bool) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal final record: %w", err)
	}

	if replace {
		_, err = s.db.Exec(
			"UPDATE final_news SET processing_date = ?, doc = ? WHERE headline = ? AND published_at = ?",
			record.ProcessingDate, data, record.Headline, record.PublishedAt,
		)
	} else {
		_, err = s.db.Exec(
			"INSERT INTO final_news (headline, published_at, processing_date, doc) VALUES (?, ?, ?, ?)",
			record.Headline, record.PublishedAt, record.ProcessingDate, data,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to write final record: %w", err)
	}
	return nil
}

// ListFinalByDate returns every final record with the given processing date.
func (s *Store) ListFinalByDate(date string) ([]iqnews.FinalRecord, error) {
	rows, err := s.db.Query("SELECT doc FROM final_news WHERE processing_date = ?", date)
	if err != nil {
		return nil, fmt.Errorf("failed to query final records: %w", err)
	}
	defer rows.Close()

	var records []iqnews.FinalRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan final record: %w", err)
		}
		var record iqnews.FinalRecord
		if err := json.Unmarshal(data, &record); err != nil {
			slog.Error("skipping corrupt final record document", "error", err)
			continue
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// GenerateAnalytics recomputes the daily analytics for the given processing
// date from the full set of final records for that date, and upserts the
// result into the analytics collection. Re-running for the same date
// overwrites in place.
func (s *Store) GenerateAnalytics(date string) (*iqnews.DailyAnalytics, error) {
	records, err := s.ListFinalByDate(date)
	if err != nil {
		return nil, err
	}

	analytics := computeAnalytics(date, records, s.now())

	data, err := json.Marshal(analytics)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analytics: %w", err)
	}
	_, err = s.db.Exec(
		"INSERT INTO news_analytics (date, doc) VALUES (?, ?) ON CONFLICT(date) DO UPDATE SET doc = excluded.doc",
		date, data,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert analytics: %w", err)
	}

	slog.Info("analytics generated", "date", date, "total_news", analytics.TotalNews)
	return analytics, nil
}

// computeAnalytics aggregates final records into a DailyAnalytics document.
// With no records every field is zero or empty.
func computeAnalytics(date string, records []iqnews.FinalRecord, generatedAt time.Time) *iqnews.DailyAnalytics {
	distribution := map[iqnews.Sentiment]int{
		iqnews.SentimentPositive: 0,
		iqnews.SentimentNegative: 0,
		iqnews.SentimentNeutral:  0,
	}
	tickerCounts := map[string]int{}
	totalConfidence := 0.0

	for _, record := range records {
		if _, ok := distribution[record.Sentiment]; ok {
			distribution[record.Sentiment]++
		}
		for _, ticker := range record.Tickers {
			tickerCounts[ticker]++
		}
		totalConfidence += record.Confidence
	}

	total := len(records)
	percentage := map[string]float64{"positive": 0, "negative": 0, "neutral": 0}
	averageConfidence := 0.0
	if total > 0 {
		for sentiment, count := range distribution {
			percentage[string(sentiment)] = round2(float64(count) / float64(total) * 100)
		}
		averageConfidence = round3(totalConfidence / float64(total))
	}

	return &iqnews.DailyAnalytics{
		Date:                  date,
		TotalNews:             total,
		SentimentDistribution: distribution,
		SentimentPercentage:   percentage,
		AverageConfidence:     averageConfidence,
		TopTickers:            topTickers(tickerCounts, 10),
		GeneratedAt:           generatedAt,
	}
}

// topTickers ranks tickers by mention count, descending, capped at limit.
// Ties are broken by ticker name so repeated computations agree.
func topTickers(counts map[string]int, limit int) []iqnews.TickerCount {
	ranked := make([]iqnews.TickerCount, 0, len(counts))
	for ticker, count := range counts {
		ranked = append(ranked, iqnews.TickerCount{Ticker: ticker, Count: count})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Ticker < ranked[j].Ticker
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// FindAnalytics returns the stored analytics for a date, or nil when none
// have been generated.
func (s *Store) FindAnalytics(date string) (*iqnews.DailyAnalytics, error) {
	var data []byte
	err := s.db.QueryRow("SELECT doc FROM news_analytics WHERE date = ?", date).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analytics: %w", err)
	}

	var analytics iqnews.DailyAnalytics
	if err := json.Unmarshal(data, &analytics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analytics: %w", err)
	}
	return &analytics, nil
}

// Counts reports the number of documents in each collection.
func (s *Store) Counts() (map[string]int, error) {
	counts := map[string]int{}
	for _, table := range []string{"raw_news", "processed_news", "final_news", "news_analytics"} {
		var count int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
		if err := s.db.QueryRow(query).Scan(&count); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = count
	}
	return counts, nil
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
func round3(x float64) float64 { return math.Round(x*1000) / 1000 }
