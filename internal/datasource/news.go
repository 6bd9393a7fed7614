package datasource

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/seenimoa/finnews/pkg/models"
	"github.com/seenimoa/finnews/pkg/utils"
)

// DefaultFeeds lists Indonesian financial news RSS feeds.
var DefaultFeeds = []string{
	"https://www.cnbcindonesia.com/market/rss",
	"https://www.antaranews.com/rss/ekonomi-bursa.xml",
	"https://www.idxchannel.com/rss",
}

// Feed fetches articles from RSS and Atom feeds.
type Feed struct {
	parser  *gofeed.Parser
	limiter *rate.Limiter
	logger  arbor.ILogger
}

// FeedOption configures a Feed.
type FeedOption func(*Feed)

// WithFeedHTTPClient sets the HTTP client used for feed requests.
func WithFeedHTTPClient(c *http.Client) FeedOption {
	return func(f *Feed) { f.parser.Client = c }
}

// WithFeedRate limits feed requests to rps per second.
func WithFeedRate(rps float64) FeedOption {
	return func(f *Feed) { f.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithFeedLogger sets the logger.
func WithFeedLogger(l arbor.ILogger) FeedOption {
	return func(f *Feed) { f.logger = l }
}

// NewFeed creates a feed reader limited to 2 requests per second.
func NewFeed(opts ...FeedOption) *Feed {
	parser := gofeed.NewParser()
	parser.Client = NewHTTPClient()
	parser.UserAgent = DefaultUserAgent

	f := &Feed{
		parser:  parser,
		limiter: rate.NewLimiter(2, 1), // conservative: 2 req/s
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = arbor.NewLogger()
	}
	return f
}

// Fetch reads every feed concurrently and returns their items as articles,
// newest first, with duplicate links removed. A failing feed is skipped;
// Fetch fails only when every feed fails.
func (f *Feed) Fetch(ctx context.Context, urls []string) ([]models.Article, error) {
	var (
		mu       sync.Mutex
		articles []models.Article
		failed   int
		lastErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, url := range urls {
		g.Go(func() error {
			items, err := f.fetchOne(gctx, url)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Non-critical: skip failed sources.
				failed++
				lastErr = err
				f.logger.Warn().Err(err).Str("feed", url).Msg("datasource: feed skipped")
				return nil
			}
			articles = append(articles, items...)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(urls) > 0 && failed == len(urls) {
		return nil, fmt.Errorf("all %d feeds failed: %w", failed, lastErr)
	}

	articles = dedupeByURL(articles)
	sortArticlesByDate(articles)
	f.logger.Info().Int("feeds", len(urls)).Int("articles", len(articles)).Msg("datasource: feeds fetched")
	return articles, nil
}

// fetchOne parses a single feed.
func (f *Feed) fetchOne(ctx context.Context, url string) ([]models.Article, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	feed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", url, err)
	}

	articles := make([]models.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		if a, ok := itemArticle(feed.Title, item); ok {
			articles = append(articles, a)
		}
	}
	return articles, nil
}

// itemArticle converts a feed item. Items with neither title nor body are
// dropped.
func itemArticle(source string, item *gofeed.Item) (models.Article, bool) {
	body := item.Content
	if strings.TrimSpace(body) == "" {
		body = item.Description
	}
	a := models.Article{
		Headline: strings.TrimSpace(utils.StripHTML(item.Title)),
		Content:  cleanHTML(body),
		Source:   source,
		URL:      item.Link,
	}
	if a.Headline == "" && a.Content == "" {
		return models.Article{}, false
	}

	switch {
	case item.PublishedParsed != nil:
		a.PublishedAt = utils.ToWIB(*item.PublishedParsed).Format(time.RFC3339)
	case item.UpdatedParsed != nil:
		a.PublishedAt = utils.ToWIB(*item.UpdatedParsed).Format(time.RFC3339)
	}
	return a, true
}

// cleanHTML strips HTML tags from a string using goquery.
func cleanHTML(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(utils.StripHTML(s))
}

func dedupeByURL(articles []models.Article) []models.Article {
	seen := make(map[string]bool, len(articles))
	out := articles[:0]
	for _, a := range articles {
		if a.URL != "" {
			if seen[a.URL] {
				continue
			}
			seen[a.URL] = true
		}
		out = append(out, a)
	}
	return out
}

// sortArticlesByDate sorts articles by published date, newest first.
// Undated articles go last.
func sortArticlesByDate(articles []models.Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		ti, oki := parsePublished(articles[i].PublishedAt)
		tj, okj := parsePublished(articles[j].PublishedAt)
		if oki != okj {
			return oki
		}
		return ti.After(tj)
	})
}

func parsePublished(s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, s)
	return t, err == nil
}
