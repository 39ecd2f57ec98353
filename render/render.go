// Package render provides the page-rendering session the crawler navigates
// with. A session exposes one page at a time: loading a new URL invalidates
// the previously returned page handle, so callers must re-load a listing
// page after navigating away from it.
package render

import (
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const userAgent = "iqnews/1.0 (financial news extraction pipeline)"

// LoadError reports a URL that could not be loaded after all retry attempts.
type LoadError struct {
	URL string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.URL, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Session is a stateful page-rendering session. Implementations hold at most
// one rendered page at a time; a Page handle is only valid until the next
// Load or RetryLoad call on the same session. Close must be called exactly
// once when the caller is done, on every exit path.
type Session interface {
	Load(url string) (*Page, error)
	RetryLoad(url string, maxAttempts int) (*Page, error)
	Close() error
}

// Page is a rendered view of a single URL.
type Page struct {
	url string
	doc *goquery.Document
}

// NewPage wraps an already-parsed document. Exposed for tests that drive the
// crawler with canned HTML.
func NewPage(url string, doc *goquery.Document) *Page {
	return &Page{url: url, doc: doc}
}

// URL returns the address the page was rendered from.
func (p *Page) URL() string { return p.url }

// Has reports whether at least one element matches the selector.
func (p *Page) Has(selector string) bool {
	return p.doc.Find(selector).Length() > 0
}

// Find returns all elements matching the selector.
func (p *Page) Find(selector string) *goquery.Selection {
	return p.doc.Find(selector)
}

// Text returns the trimmed text of the first element matching the selector,
// or "" when nothing matches.
func (p *Page) Text(selector string) string {
	return strings.TrimSpace(p.doc.Find(selector).First().Text())
}

// Attr returns the named attribute of the first element matching the
// selector.
func (p *Page) Attr(selector, name string) (string, bool) {
	return p.doc.Find(selector).First().Attr(name)
}

// HTTPSession renders pages by plain HTTP GET and goquery parsing.
type HTTPSession struct {
	client    *http.Client
	baseDelay time.Duration
	sleep     func(time.Duration)
	jitter    func() float64
}

// Option configures an HTTPSession.
type Option func(*HTTPSession)

// WithClient replaces the HTTP client used for page loads.
func WithClient(client *http.Client) Option {
	return func(s *HTTPSession) { s.client = client }
}

// WithBaseDelay sets the delay between retry attempts.
func WithBaseDelay(d time.Duration) Option {
	return func(s *HTTPSession) { s.baseDelay = d }
}

// NewHTTPSession creates a session with a 10 second request timeout and a 2
// second base retry delay.
func NewHTTPSession(opts ...Option) *HTTPSession {
	s := &HTTPSession{
		client:    &http.Client{Timeout: 10 * time.Second},
		baseDelay: 2 * time.Second,
		sleep:     time.Sleep,
		jitter:    randomJitter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches and parses the page at url.
func (s *HTTPSession) Load(url string) (*Page, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	return &Page{url: url, doc: doc}, nil
}

// RetryLoad fetches the page at url, retrying up to maxAttempts times with
// the base delay plus up to a second of jitter between attempts. It returns
// a *LoadError wrapping the last failure once the attempts are exhausted.
func (s *HTTPSession) RetryLoad(url string, maxAttempts int) (*Page, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		page, err := s.Load(url)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if attempt < maxAttempts {
			s.sleep(s.baseDelay + time.Duration(s.jitter()*float64(time.Second)))
		}
	}

	return nil, &LoadError{URL: url, Err: lastErr}
}

func randomJitter() float64 { return rand.Float64() }

// Close releases the session. The plain-HTTP session holds no long-lived
// resources, but callers must still treat Close as mandatory so other
// Session implementations can rely on it.
func (s *HTTPSession) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
