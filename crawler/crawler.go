// Package crawler walks the paginated stock-news listing and extracts every
// article published on a single target date.
package crawler

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/iqnews"
	"github.com/pevans/iqnews/dateparse"
	"github.com/pevans/iqnews/render"
)

const (
	// The listing site wraps its article list in #load_news > ul.news, one
	// <li> per teaser with an <a> (headline, link) and a <b> (date string).
	listingContainer = "#load_news"
	listingItems     = "#load_news .news li"

	// Article body on the detail page.
	detailContent = "#zoomthis"

	// Placeholder stored when a detail page has no recognizable body.
	missingContent = "Konten tidak ditemukan"
)

// Config holds the crawl parameters.
type Config struct {
	// BaseURL is the listing URL prefix; page N lives at "<BaseURL>,N.html".
	BaseURL string

	// Source is stamped on every extracted article.
	Source string

	// StartPage is the first listing page to visit. Defaults to 1.
	StartPage int

	// RetryAttempts bounds the per-page load retries. Defaults to 3.
	RetryAttempts int
}

// DefaultConfig returns the production listing parameters.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "http://www.iqplus.info/news/stock_news/go-to-page",
		Source:        "iqplus",
		StartPage:     1,
		RetryAttempts: 3,
	}
}

// Crawler extracts articles for one target date from a descending
// chronological listing. It navigates through a single render session, one
// page at a time; the caller owns the session and is responsible for closing
// it.
type Crawler struct {
	session render.Session
	config  Config
	now     func() time.Time
}

// New creates a crawler over the given session. Zero-valued config fields
// fall back to the defaults.
func New(session render.Session, config Config) *Crawler {
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Source == "" {
		config.Source = defaults.Source
	}
	if config.StartPage < 1 {
		config.StartPage = defaults.StartPage
	}
	if config.RetryAttempts < 1 {
		config.RetryAttempts = defaults.RetryAttempts
	}

	return &Crawler{
		session: session,
		config:  config,
		now:     time.Now,
	}
}

// Crawl visits listing pages from the configured start page up to maxPages
// and returns every article whose parsed publication date equals targetDate
// (compared as a calendar date).
//
// The listing is chronologically descending, so the crawl advances to the
// next page only while the oldest parseable date on the current page is not
// older than the target; once a page bottoms out past the target, no later
// page can contain it. Per-item failures (unparseable dates, broken detail
// pages) are logged and skipped. A failure to load or recognize a listing
// page ends the crawl early; whatever was accumulated so far is returned.
func (c *Crawler) Crawl(targetDate time.Time, maxPages int) []iqnews.RawArticle {
	target := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, time.UTC)

	var articles []iqnews.RawArticle
	for page := c.config.StartPage; page <= maxPages; page++ {
		pageURL := c.pageURL(page)
		slog.Info("processing listing page", "page", page, "url", pageURL, "target_date", target.Format("2006-01-02"))

		listing, err := c.session.RetryLoad(pageURL, c.config.RetryAttempts)
		if err != nil {
			slog.Error("failed to load listing page, stopping crawl", "page", page, "error", err)
			break
		}

		if !listing.Has(listingContainer) {
			slog.Warn("listing container not found, stopping crawl", "page", page)
			break
		}

		found, oldest := c.crawlPage(listing, pageURL, target, &articles)
		if found == 0 {
			slog.Warn("no articles on listing page, stopping crawl", "page", page)
			break
		}

		// Continue only while this page could still be followed by articles
		// from the target date.
		if !oldest.IsZero() && oldest.Before(target) {
			slog.Info("oldest article on page is older than target, stopping crawl",
				"page", page, "oldest", oldest.Format("2006-01-02"))
			break
		}
	}

	slog.Info("crawl finished", "articles", len(articles))
	return articles
}

// crawlPage processes every item of one listing page, appending matches to
// out. It returns the number of items seen and the oldest parseable date on
// the page (zero when no date parsed).
//
// Visiting a detail page navigates the session away from the listing, which
// invalidates the listing handle; the listing is re-loaded before any item
// is read after such a navigation.
func (c *Crawler) crawlPage(listing *render.Page, pageURL string, target time.Time, out *[]iqnews.RawArticle) (int, time.Time) {
	items := listing.Find(listingItems)
	count := items.Length()

	var oldest time.Time
	stale := false
	for i := 0; i < count; i++ {
		if stale {
			reloaded, err := c.session.RetryLoad(pageURL, c.config.RetryAttempts)
			if err != nil {
				slog.Error("failed to re-load listing page", "url", pageURL, "error", err)
				continue
			}
			listing = reloaded
			items = listing.Find(listingItems)
			stale = false
		}

		if i >= items.Length() {
			slog.Warn("listing shrank below item index after reload", "index", i)
			continue
		}

		item := items.Eq(i)
		anchor := item.Find("a").First()
		rawDate := strings.TrimSpace(item.Find("b").First().Text())

		published, err := dateparse.Parse(rawDate)
		if err != nil {
			slog.Warn("skipping article with unparseable date", "raw", rawDate)
			continue
		}

		if oldest.IsZero() || published.Before(oldest) {
			oldest = published
		}

		if !published.Equal(target) {
			continue
		}

		headline := strings.TrimSpace(anchor.Text())
		link, ok := anchor.Attr("href")
		if !ok || link == "" {
			slog.Warn("article matches target date but has no link", "headline", headline)
			continue
		}

		detail, err := c.session.RetryLoad(link, c.config.RetryAttempts)
		stale = true // the session has navigated away from the listing
		if err != nil {
			slog.Error("failed to load article detail page", "headline", headline, "error", err)
			continue
		}

		content := detail.Text(detailContent)
		if content == "" {
			slog.Warn("article body not found on detail page", "headline", headline)
			content = missingContent
		}

		*out = append(*out, iqnews.RawArticle{
			ID:          uuid.New(),
			Headline:    headline,
			Link:        link,
			PublishedAt: rawDate,
			Content:     content,
			ExtractedAt: c.now(),
			Source:      c.config.Source,
		})
		slog.Info("extracted article", "headline", headline)
	}

	return count, oldest
}

func (c *Crawler) pageURL(page int) string {
	return fmt.Sprintf("%s,%d.html", c.config.BaseURL, page)
}
