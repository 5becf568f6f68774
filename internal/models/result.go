package models

// ScoredResult is a single retrieval hit. It is never persisted.
type ScoredResult struct {
	Score float64    `json:"score"`
	Entry IndexEntry `json:"entry"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results   []ScoredResult `json:"results"`
	Total     int            `json:"total"`
	Query     string         `json:"query"`
	QueryTime int64          `json:"query_time_ms"`
}
