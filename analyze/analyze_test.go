package analyze

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/iqnews"
)

// newModelServer returns an httptest server that answers every generate
// request with the given response text.
func newModelServer(t *testing.T, response string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "phi3", req["model"])
		assert.Equal(t, false, req["stream"])
		assert.Equal(t, "json", req["format"])

		json.NewEncoder(w).Encode(map[string]string{"response": response})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestAnalyze_RemoteSuccess verifies a well-formed model response is used
// directly
func TestAnalyze_RemoteSuccess(t *testing.T) {
	srv := newModelServer(t, `{"sentiment":"Positive","confidence":0.9,"tickers":["BBCA"],"reasoning":"laba naik","summary":"Laba BBCA naik."}`)
	a := New(srv.URL, "phi3")

	result := a.Analyze(context.Background(), "BBCA: LABA NAIK", "Laba bersih naik.")

	assert.Equal(t, iqnews.SentimentPositive, result.Sentiment, "sentiment normalized to lowercase")
	assert.Equal(t, 0.9, result.Confidence)
	assert.Equal(t, []string{"BBCA"}, result.Tickers)
	assert.Equal(t, "Laba BBCA naik.", result.Summary)
	assert.False(t, result.Fallback)
}

// TestAnalyze_ExtractsEmbeddedJSON verifies a response with prose around the
// JSON object still parses
func TestAnalyze_ExtractsEmbeddedJSON(t *testing.T) {
	srv := newModelServer(t, `Berikut hasil analisis:
{"sentiment":"negative","confidence":0.7,"tickers":[],"reasoning":"rugi","summary":"Perseroan merugi."}
Semoga membantu.`)
	a := New(srv.URL, "phi3")

	result := a.Analyze(context.Background(), "UNVR MERUGI", "Rugi membesar.")

	assert.Equal(t, iqnews.SentimentNegative, result.Sentiment)
	assert.Equal(t, 0.7, result.Confidence)
	assert.False(t, result.Fallback)
}

// TestAnalyze_TickerBackfill verifies an empty ticker list is back-filled
// from the headline prefix
func TestAnalyze_TickerBackfill(t *testing.T) {
	srv := newModelServer(t, `{"sentiment":"neutral","confidence":0.5,"tickers":[],"reasoning":"-","summary":"-"}`)
	a := New(srv.URL, "phi3")

	result := a.Analyze(context.Background(), "TLKM: EKSPANSI JARINGAN", "Isi.")
	assert.Equal(t, []string{"TLKM"}, result.Tickers)

	// No ticker prefix: stays empty, not nil.
	result = a.Analyze(context.Background(), "Bursa bergerak datar", "Isi.")
	assert.Equal(t, []string{}, result.Tickers)
}

// TestAnalyze_FallbackOnConnectionError verifies an unreachable endpoint
// falls back to the lexical analyzer
func TestAnalyze_FallbackOnConnectionError(t *testing.T) {
	a := New("http://127.0.0.1:1/api/generate", "phi3")

	result := a.Analyze(context.Background(), "BBCA: LABA NAIK", "Laba bersih naik tajam.")

	assert.True(t, result.Fallback)
	assert.Equal(t, iqnews.SentimentPositive, result.Sentiment)
}

// TestAnalyze_FallbackOnMalformedResponse verifies unparseable model output
// falls back instead of failing
func TestAnalyze_FallbackOnMalformedResponse(t *testing.T) {
	srv := newModelServer(t, `maaf, saya tidak bisa membantu`)
	a := New(srv.URL, "phi3")

	result := a.Analyze(context.Background(), "TLKM: EKSPANSI BARU", "Perseroan membangun pabrik baru.")

	assert.True(t, result.Fallback)
	assert.Equal(t, iqnews.SentimentPositive, result.Sentiment)
}

// TestFallback_Deterministic verifies identical input always yields an
// identical result
func TestFallback_Deterministic(t *testing.T) {
	first := Fallback("BBCA: LABA NAIK", "Laba naik. Investasi tumbuh. Krisis dihindari.")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Fallback("BBCA: LABA NAIK", "Laba naik. Investasi tumbuh. Krisis dihindari."))
	}
}

// TestFallback_SentimentAndConfidence verifies the cue counting and the
// confidence formula
func TestFallback_SentimentAndConfidence(t *testing.T) {
	tests := []struct {
		name           string
		headline       string
		content        string
		wantSentiment  iqnews.Sentiment
		wantConfidence float64
	}{
		{
			name:           "positive outweighs negative",
			headline:       "BBCA: LABA NAIK",
			content:        "Laba naik, profit tumbuh.", // laba naik profit tumbuh = 4 cues
			wantSentiment:  iqnews.SentimentPositive,
			wantConfidence: 0.8, // capped at 0.8
		},
		{
			name:           "negative outweighs positive",
			headline:       "UNVR: RUGI",
			content:        "Penjualan turun.",
			wantSentiment:  iqnews.SentimentNegative,
			wantConfidence: 0.7, // 0.5 + 0.1*2
		},
		{
			name:           "no cues is neutral",
			headline:       "RUPS digelar pekan depan",
			content:        "Agenda rapat belum diumumkan.",
			wantSentiment:  iqnews.SentimentNeutral,
			wantConfidence: 0.6,
		},
		{
			name:           "balanced cues are neutral",
			headline:       "Pasar campur aduk",
			content:        "Saham naik, obligasi turun.",
			wantSentiment:  iqnews.SentimentNeutral,
			wantConfidence: 0.6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Fallback(tt.headline, tt.content)
			assert.Equal(t, tt.wantSentiment, result.Sentiment)
			assert.InDelta(t, tt.wantConfidence, result.Confidence, 1e-9)
			assert.True(t, result.Fallback)
			assert.Contains(t, result.Reasoning, "positif")
			assert.Contains(t, result.Reasoning, "negatif")
		})
	}
}

// TestFallback_SummaryTakesThreeSentences verifies the summary is the first
// up-to-three sentences of the content
func TestFallback_SummaryTakesThreeSentences(t *testing.T) {
	content := "Kalimat satu. Kalimat dua! Kalimat tiga? Kalimat empat."
	result := Fallback("JUDUL", content)
	assert.Equal(t, "Kalimat satu. Kalimat dua! Kalimat tiga?", result.Summary)

	result = Fallback("JUDUL", "Hanya satu kalimat tanpa titik")
	assert.Equal(t, "Hanya satu kalimat tanpa titik", result.Summary)

	result = Fallback("JUDUL", "")
	assert.Equal(t, "", result.Summary)
}

// TestEnrich_AttachesAnalysis verifies Enrich copies the article and stamps
// the processing time
func TestEnrich_AttachesAnalysis(t *testing.T) {
	srv := newModelServer(t, `{"sentiment":"positive","confidence":0.8,"tickers":["BBCA"],"reasoning":"r","summary":"s"}`)
	a := New(srv.URL, "phi3")

	article := iqnews.RawArticle{Headline: "BBCA: LABA NAIK", PublishedAt: "12/6/25 14:30", Content: "Isi."}
	enriched, err := a.Enrich(context.Background(), article)
	require.NoError(t, err)

	assert.Equal(t, article.Headline, enriched.Headline)
	assert.Equal(t, iqnews.SentimentPositive, enriched.Sentiment)
	assert.False(t, enriched.ProcessedAt.IsZero())
	assert.Empty(t, enriched.Error)
}

// TestEnrich_CancelledContext verifies a dead context is the one error
// Enrich reports
func TestEnrich_CancelledContext(t *testing.T) {
	a := New("http://127.0.0.1:1/api/generate", "phi3")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Enrich(ctx, iqnews.RawArticle{Headline: "X"})
	assert.ErrorIs(t, err, context.Canceled)
}
