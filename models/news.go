package models

// NewsArticle mirrors the NewsAPI article shape the frontend consumes.
type NewsArticle struct {
	Source      NewsSource `json:"source"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	URL         string     `json:"url"`
	URLToImage  string     `json:"urlToImage"`
	PublishedAt string     `json:"publishedAt"`
}

type NewsSource struct {
	Name string `json:"name"`
}

// NewsPayload is the filtered pharma news feed served to clients.
type NewsPayload struct {
	Status       string        `json:"status"`
	TotalResults int           `json:"totalResults"`
	Articles     []NewsArticle `json:"articles"`
	Note         string        `json:"note,omitempty"`
}
