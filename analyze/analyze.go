// Package analyze enriches raw articles with a sentiment/ticker/summary
// analysis. The primary path asks a remote LLM endpoint; a deterministic
// lexical analyzer takes over whenever the remote call fails or returns
// something unparseable, so analysis as a whole never fails.
package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/pevans/iqnews"
)

// The instruction sent to the LLM. The site publishes in Indonesian, so the
// analysis is requested in the same language.
const systemPrompt = `Anda adalah analis keuangan. Untuk berita berikut, lakukan:
1. Analisis sentimen (positive/neutral/negative) dan confidence (0.0-1.0)
2. Ekstrak ticker saham (jika ada)
3. Buat ringkasan 1-3 kalimat dalam Bahasa Indonesia
Format output JSON:
{"sentiment":"...", "confidence":0.0, "tickers": [...], "reasoning":"...", "summary":"..."}`

// Listings prefix headlines with the stock ticker, e.g. "BBCA: ...".
var tickerPattern = regexp.MustCompile(`^([A-Z]{3,5}):`)

// Lexical cues for the fallback analyzer, in the source language.
var (
	positiveWords = []string{
		"naik", "tumbuh", "meningkat", "profit", "laba", "ekspansi",
		"investasi", "positif", "bagus", "untung", "capex", "bangun", "baru",
	}
	negativeWords = []string{
		"turun", "merosot", "rugi", "loss", "negatif", "buruk", "gagal",
		"krisis", "penurunan", "defisit",
	}
)

// Result is one article's analysis. Fallback reports whether the lexical
// analyzer produced it instead of the remote model.
type Result struct {
	Sentiment  iqnews.Sentiment `json:"sentiment"`
	Confidence float64          `json:"confidence"`
	Tickers    []string         `json:"tickers"`
	Reasoning  string           `json:"reasoning"`
	Summary    string           `json:"summary"`
	Fallback   bool             `json:"-"`
}

// Analyzer calls an Ollama-style generate endpoint and falls back to lexical
// analysis on any failure.
type Analyzer struct {
	endpoint string
	model    string
	client   *http.Client
	now      func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithClient replaces the HTTP client used for remote analysis calls.
func WithClient(client *http.Client) Option {
	return func(a *Analyzer) { a.client = client }
}

// New creates an analyzer for the given generate endpoint and model name.
// The remote call is bounded by a 120 second timeout.
func New(endpoint, model string, opts ...Option) *Analyzer {
	a := &Analyzer{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: 120 * time.Second},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze produces the sentiment analysis for one article. It never fails:
// when the remote model is unreachable, times out, or returns malformed
// output, the deterministic fallback analysis is returned instead.
func (a *Analyzer) Analyze(ctx context.Context, headline, content string) Result {
	result, err := a.analyzeRemote(ctx, headline, content)
	if err != nil {
		slog.Warn("remote analysis failed, using fallback", "headline", headline, "error", err)
		return Fallback(headline, content)
	}
	return result
}

// Enrich analyzes a raw article and attaches the result. The only error is a
// cancelled or expired context; any analysis-level failure is absorbed by the
// fallback.
func (a *Analyzer) Enrich(ctx context.Context, article iqnews.RawArticle) (iqnews.EnrichedArticle, error) {
	if err := ctx.Err(); err != nil {
		return iqnews.EnrichedArticle{}, err
	}

	result := a.Analyze(ctx, article.Headline, article.Content)
	return iqnews.EnrichedArticle{
		RawArticle:  article,
		Sentiment:   result.Sentiment,
		Confidence:  result.Confidence,
		Tickers:     result.Tickers,
		Reasoning:   result.Reasoning,
		Summary:     result.Summary,
		ProcessedAt: a.now(),
	}, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (a *Analyzer) analyzeRemote(ctx context.Context, headline, content string) (Result, error) {
	prompt := fmt.Sprintf("System: %s\n\nHeadline: %s\nContent: %s\n\nResponse (JSON format only):",
		systemPrompt, headline, content)

	body, err := json.Marshal(generateRequest{
		Model:  a.model,
		Prompt: prompt,
		Stream: false,
		Format: "json",
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("analysis HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response: %w", err)
	}

	var gen generateResponse
	if err := json.Unmarshal(raw, &gen); err != nil {
		return Result{}, fmt.Errorf("failed to parse response envelope: %w", err)
	}

	result, err := parseAnalysis(gen.Response)
	if err != nil {
		return Result{}, err
	}

	if len(result.Tickers) == 0 {
		result.Tickers = backfillTickers(headline)
	}
	return result, nil
}

// parseAnalysis decodes the model's free-text output. The text is expected
// to be a JSON object; when it is not, the substring from the first "{" to
// the last "}" is tried before giving up.
func parseAnalysis(text string) (Result, error) {
	var result Result
	if err := json.Unmarshal([]byte(text), &result); err == nil {
		return normalize(result), nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Result{}, fmt.Errorf("no JSON object in analysis response")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &result); err != nil {
		return Result{}, fmt.Errorf("failed to parse analysis JSON: %w", err)
	}
	return normalize(result), nil
}

func normalize(result Result) Result {
	result.Sentiment = iqnews.Sentiment(strings.ToLower(string(result.Sentiment)))
	if result.Tickers == nil {
		result.Tickers = []string{}
	}
	return result
}

// Fallback is the deterministic lexical analysis used when the remote model
// is unavailable. Identical input always yields an identical result.
func Fallback(headline, content string) Result {
	text := strings.ToLower(headline + " " + content)

	positive := 0
	for _, word := range positiveWords {
		if strings.Contains(text, word) {
			positive++
		}
	}
	negative := 0
	for _, word := range negativeWords {
		if strings.Contains(text, word) {
			negative++
		}
	}

	var sentiment iqnews.Sentiment
	var confidence float64
	switch {
	case positive > negative:
		sentiment = iqnews.SentimentPositive
		confidence = fallbackConfidence(positive - negative)
	case negative > positive:
		sentiment = iqnews.SentimentNegative
		confidence = fallbackConfidence(negative - positive)
	default:
		sentiment = iqnews.SentimentNeutral
		confidence = 0.6
	}

	return Result{
		Sentiment:  sentiment,
		Confidence: confidence,
		Tickers:    backfillTickers(headline),
		Reasoning:  fmt.Sprintf("Analisis fallback: %d positif, %d negatif", positive, negative),
		Summary:    summarize(content, 3),
		Fallback:   true,
	}
}

func fallbackConfidence(diff int) float64 {
	confidence := 0.5 + 0.1*float64(diff)
	if confidence > 0.8 {
		confidence = 0.8
	}
	return confidence
}

// backfillTickers derives a ticker from a "BBCA: ..." style headline prefix.
func backfillTickers(headline string) []string {
	if match := tickerPattern.FindStringSubmatch(headline); match != nil {
		return []string{match[1]}
	}
	return []string{}
}

// summarize returns the first maxSentences sentences of text joined with
// single spaces. A sentence ends at ".", "!" or "?" followed by whitespace.
func summarize(text string, maxSentences int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	var sentences []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes) && len(sentences) < maxSentences; i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		if i+1 < len(runes) && !isSpace(runes[i+1]) {
			continue
		}
		sentence := strings.TrimSpace(string(runes[start : i+1]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = i + 1
	}

	if len(sentences) < maxSentences && start < len(runes) {
		if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
			sentences = append(sentences, rest)
		}
	}

	return strings.Join(sentences, " ")
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
