package models

// Article is a single news item submitted for analysis.
// Source and URL are informational and ignored by the analysis itself.
type Article struct {
	Headline    string `json:"headline"`
	Content     string `json:"content"`
	PublishedAt string `json:"published_at,omitempty"`
	Source      string `json:"source,omitempty"`
	URL         string `json:"url,omitempty"`
}
