package models

import "time"

// Grant is a single item of a search result
type Grant struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Agency      string     `json:"agency,omitempty"`
	Category    string     `json:"category,omitempty"`
	Status      string     `json:"status,omitempty"`
	FundingMin  float64    `json:"fundingMin,omitempty"`
	FundingMax  float64    `json:"fundingMax,omitempty"`
	CloseDate   *time.Time `json:"closeDate,omitempty"`
	Description string     `json:"description,omitempty"`
}

// SearchResult is the decoded body of the search endpoint
type SearchResult struct {
	Items      []Grant `json:"items"`
	TotalCount int     `json:"totalCount"`
}

// Recommendation is an item of the recommendations endpoint
type Recommendation struct {
	GrantID string  `json:"grantId"`
	Score   float64 `json:"score"`
	Reason  string  `json:"reason,omitempty"`
}
