// Package pipeline wires the crawl, enrichment, and load stages together and
// maintains the JSON hand-off files the external scheduler reads between
// stages. Each stage runs as one bounded batch job for a single target date.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pevans/iqnews"
	"github.com/pevans/iqnews/analyze"
	"github.com/pevans/iqnews/config"
	"github.com/pevans/iqnews/crawler"
	"github.com/pevans/iqnews/render"
	"github.com/pevans/iqnews/store"
)

// Enricher produces the analysis for one raw article.
type Enricher interface {
	Enrich(ctx context.Context, article iqnews.RawArticle) (iqnews.EnrichedArticle, error)
}

// Pipeline runs the per-date ETL stages.
type Pipeline struct {
	config     config.Config
	location   *time.Location
	enricher   Enricher
	newSession func() render.Session
	now        func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithEnricher replaces the analysis gateway.
func WithEnricher(enricher Enricher) Option {
	return func(p *Pipeline) { p.enricher = enricher }
}

// WithSessionFactory replaces how extraction acquires its render session.
func WithSessionFactory(factory func() render.Session) Option {
	return func(p *Pipeline) { p.newSession = factory }
}

// New creates a pipeline from the given configuration.
func New(cfg config.Config, opts ...Option) (*Pipeline, error) {
	location, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		config:     cfg,
		location:   location,
		enricher:   analyze.New(cfg.OllamaEndpoint, cfg.OllamaModel),
		newSession: func() render.Session { return render.NewHTTPSession() },
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// TargetDate resolves the date a stage should run for. An empty argument
// defaults to yesterday in the configured timezone; anything else must be a
// YYYY-MM-DD date.
func (p *Pipeline) TargetDate(arg string) (string, error) {
	if arg == "" {
		return p.now().In(p.location).AddDate(0, 0, -1).Format("2006-01-02"), nil
	}
	if _, err := time.Parse("2006-01-02", arg); err != nil {
		return "", fmt.Errorf("invalid target date %q: %w", arg, err)
	}
	return arg, nil
}

// RunExtract crawls the listing for the target date, persists the raw
// articles, and writes the extraction hand-off files. The render session is
// released on every exit path.
func (p *Pipeline) RunExtract(ctx context.Context, targetDate string) (*ExtractResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	date, err := time.Parse("2006-01-02", targetDate)
	if err != nil {
		return nil, fmt.Errorf("invalid target date %q: %w", targetDate, err)
	}

	slog.Info("starting extraction", "target_date", targetDate)

	articles := func() []iqnews.RawArticle {
		session := p.newSession()
		defer session.Close()

		c := crawler.New(session, crawler.Config{
			BaseURL:       p.config.ListingURL,
			Source:        p.config.Source,
			StartPage:     p.config.StartPage,
			RetryAttempts: p.config.RetryAttempts,
		})
		return c.Crawl(date, p.config.MaxPages)
	}()

	inserted := 0
	if len(articles) > 0 {
		st, err := store.Open(p.config.StoreDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		inserted, err = st.InsertRaw(articles)
		st.Close()
		if err != nil {
			return nil, err
		}
	}

	outputFile := p.extractedNewsPath(targetDate)
	if err := writeJSON(outputFile, articles); err != nil {
		return nil, err
	}

	result := &ExtractResult{
		Status:          StatusSuccess,
		Message:         fmt.Sprintf("Berhasil ekstrak dan simpan %d berita", inserted),
		ArticlesScraped: len(articles),
		InsertedCount:   inserted,
		TargetDate:      targetDate,
		OutputFile:      outputFile,
	}
	if len(articles) == 0 {
		result.Status = StatusWarning
		result.Message = "Tidak ada berita untuk tanggal target"
	}

	if err := writeJSON(p.extractionResultPath(targetDate), result); err != nil {
		return nil, err
	}
	return result, nil
}

// RunTransform enriches the extracted articles for the target date and
// persists them to the processed collection. Input comes from the extraction
// payload file when it exists, otherwise from the raw collection.
func (p *Pipeline) RunTransform(ctx context.Context, targetDate string) (*TransformResult, error) {
	slog.Info("starting transformation", "target_date", targetDate)

	articles, err := p.rawArticles(targetDate)
	if err != nil {
		return nil, err
	}

	if len(articles) == 0 {
		result := &TransformResult{
			Status:     StatusWarning,
			Message:    "Tidak ada berita mentah untuk ditransformasi",
			TargetDate: targetDate,
		}
		if err := writeJSON(p.transformResultPath(targetDate), result); err != nil {
			return nil, err
		}
		return result, nil
	}

	enriched := make([]iqnews.EnrichedArticle, 0, len(articles))
	for _, article := range articles {
		processed, err := p.enricher.Enrich(ctx, article)
		if err != nil {
			slog.Error("failed to enrich article", "headline", article.Headline, "error", err)
			processed = iqnews.NewErrorStub(article, err.Error(), p.now())
		}
		enriched = append(enriched, processed)
	}

	outputFile := p.processedNewsPath(targetDate)
	if err := writeJSON(outputFile, enriched); err != nil {
		return nil, err
	}

	st, err := store.Open(p.config.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	inserted, err := st.InsertProcessed(enriched)
	st.Close()
	if err != nil {
		return nil, err
	}

	result := &TransformResult{
		Status:            StatusSuccess,
		Message:           fmt.Sprintf("Berhasil transformasi %d berita", len(enriched)),
		ArticlesProcessed: len(enriched),
		InsertedCount:     inserted,
		TargetDate:        targetDate,
		OutputFile:        outputFile,
	}
	if err := writeJSON(p.transformResultPath(targetDate), result); err != nil {
		return nil, err
	}
	return result, nil
}

// rawArticles loads the transform stage's input: the extraction payload file
// when present, else everything in the raw collection.
func (p *Pipeline) rawArticles(targetDate string) ([]iqnews.RawArticle, error) {
	path := p.extractedNewsPath(targetDate)
	var articles []iqnews.RawArticle
	err := readJSON(path, &articles)
	if err == nil {
		slog.Info("loaded raw articles from file", "file", path, "count", len(articles))
		return articles, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	st, err := store.Open(p.config.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	return st.ListRaw()
}

// RunLoad merges the processed articles for the target date into the final
// collection and regenerates that date's analytics.
func (p *Pipeline) RunLoad(ctx context.Context, targetDate string) (*LoadStageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slog.Info("starting load", "target_date", targetDate)

	enriched, err := p.processedArticles(targetDate)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(p.config.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	loadResult, err := st.UpsertFinal(enriched, targetDate)
	if err != nil {
		return nil, err
	}

	analytics, err := st.GenerateAnalytics(targetDate)
	if err != nil {
		return nil, err
	}

	result := &LoadStageResult{
		Status:          StatusSuccess,
		Message:         fmt.Sprintf("Berhasil load %d berita", loadResult.TotalProcessed),
		LoadResult:      loadResult,
		AnalyticsResult: analytics,
		TargetDate:      targetDate,
		CompletedAt:     p.now(),
	}
	if loadResult.TotalProcessed == 0 {
		result.Status = StatusWarning
		result.Message = "Tidak ada data processed untuk di-load"
	}

	if err := writeJSON(p.loadResultPath(targetDate), result); err != nil {
		return nil, err
	}
	return result, nil
}

// processedArticles loads the load stage's input. The transform result file
// points at the processed payload file; when either is missing, the
// processed collection is used instead.
func (p *Pipeline) processedArticles(targetDate string) ([]iqnews.EnrichedArticle, error) {
	var transformResult TransformResult
	err := readJSON(p.transformResultPath(targetDate), &transformResult)
	if err == nil && transformResult.OutputFile != "" {
		var enriched []iqnews.EnrichedArticle
		if err := readJSON(transformResult.OutputFile, &enriched); err == nil {
			slog.Info("loaded processed articles from file",
				"file", transformResult.OutputFile, "count", len(enriched))
			return enriched, nil
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	st, err := store.Open(p.config.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	return st.ListProcessed()
}
