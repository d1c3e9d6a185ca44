package search

// Result is a single theme hit returned to the caller.
type Result struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Snippet    string   `json:"snippet"`
	Category   string   `json:"category"`
	Difficulty string   `json:"difficulty"`
	Tags       []string `json:"tags,omitempty"`
}

// Query describes a search request. Only public themes are searchable.
type Query struct {
	Text             string
	FilterCategory   string
	FilterDifficulty string
	Limit            int
	Offset           int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over themes.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ThemeRecord is the data we index for a theme.
type ThemeRecord struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Difficulty  string   `json:"difficulty"`
	Tags        []string `json:"tags"`
}
