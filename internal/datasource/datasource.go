// Package datasource loads the news articles submitted for analysis, either
// from a JSON file or from RSS/Atom feeds.
package datasource

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/seenimoa/finnews/pkg/models"
)

// --- Shared HTTP client helpers ---

// DefaultUserAgent is the user agent string used for feed requests.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// NewHTTPClient returns an HTTP client with a reasonable timeout.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// --- Article files ---

// LoadArticlesFile reads a JSON array of articles from path.
func LoadArticlesFile(path string) ([]models.Article, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open articles %s: %w", path, err)
	}
	defer f.Close()

	articles, err := DecodeArticles(f)
	if err != nil {
		return nil, fmt.Errorf("articles %s: %w", path, err)
	}
	return articles, nil
}

// DecodeArticles decodes a JSON array of articles. Unknown fields are
// ignored.
func DecodeArticles(r io.Reader) ([]models.Article, error) {
	var articles []models.Article
	if err := json.NewDecoder(r).Decode(&articles); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return articles, nil
}
