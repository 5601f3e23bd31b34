package httpserver

import (
	"encoding/json"
	"fmt"

	"grantify-client/internal/models"
	"grantify-client/internal/search"
)

// FiltersView is the JSON form of a filter state. A nil constraint is
// unconstrained; an empty one excludes everything.
type FiltersView struct {
	SearchTerm string   `json:"search_term"`
	FundingMin float64  `json:"funding_min,omitempty"`
	FundingMax float64  `json:"funding_max,omitempty"`
	Categories []string `json:"categories"`
	Agencies   []string `json:"agencies"`
	Statuses   []string `json:"statuses"`
	Sort       string   `json:"sort"`
	Page       int      `json:"page"`
}

// SearchStateResponse is the observable search state
type SearchStateResponse struct {
	search.Snapshot
	Filters FiltersView `json:"filters"`
}

// SubmitRequest submits a free-text search
type SubmitRequest struct {
	Query string `json:"q"`
}

// PageRequest selects a page
type PageRequest struct {
	Page int `json:"page"`
}

// SortRequest selects the ordering
type SortRequest struct {
	Sort search.SortKey `json:"sort"`
}

// FiltersPatch edits filters. Absent fields keep their value; for the
// enumeration filters null lifts the constraint and [] excludes everything.
type FiltersPatch struct {
	SearchTerm *string         `json:"search_term"`
	FundingMin *float64        `json:"funding_min"`
	FundingMax *float64        `json:"funding_max"`
	Categories json.RawMessage `json:"categories"`
	Agencies   json.RawMessage `json:"agencies"`
	Statuses   json.RawMessage `json:"statuses"`
}

// ActionRequest performs an interaction
type ActionRequest struct {
	Action models.Action `json:"action"`
}

// ActionResponse reports the local interaction state after an action
type ActionResponse struct {
	Success  bool                  `json:"success"`
	Outcome  string                `json:"outcome"`
	GrantID  string                `json:"grant_id"`
	Action   models.Action         `json:"action,omitempty"`
	Counters map[models.Action]int `json:"counters"`
}

// InteractionsResponse lists recorded interactions with the visible counters
type InteractionsResponse struct {
	Interactions []models.Interaction  `json:"interactions"`
	Counters     map[models.Action]int `json:"counters"`
}

func newSearchStateResponse(snap search.Snapshot) SearchStateResponse {
	f := snap.Filters
	return SearchStateResponse{
		Snapshot: snap,
		Filters: FiltersView{
			SearchTerm: f.SearchTerm(),
			FundingMin: f.Funding().Min,
			FundingMax: f.Funding().Max,
			Categories: f.Categories().Values(),
			Agencies:   f.Agencies().Values(),
			Statuses:   f.Statuses().Values(),
			Sort:       string(f.Sort()),
			Page:       f.Page(),
		},
	}
}

// apply returns f with the patch applied
func (p FiltersPatch) apply(f search.FilterState) (search.FilterState, error) {
	if p.SearchTerm != nil {
		f = f.WithSearchTerm(*p.SearchTerm)
	}
	if p.FundingMin != nil || p.FundingMax != nil {
		r := f.Funding()
		if p.FundingMin != nil {
			r.Min = *p.FundingMin
		}
		if p.FundingMax != nil {
			r.Max = *p.FundingMax
		}
		f = f.WithFunding(r)
	}

	var err error
	if f, err = patchConstraint(f, "categories", p.Categories, search.FilterState.WithCategories); err != nil {
		return f, err
	}
	if f, err = patchConstraint(f, "agencies", p.Agencies, search.FilterState.WithAgencies); err != nil {
		return f, err
	}
	if f, err = patchConstraint(f, "statuses", p.Statuses, search.FilterState.WithStatuses); err != nil {
		return f, err
	}
	return f, nil
}

// empty reports whether the patch changes nothing
func (p FiltersPatch) empty() bool {
	return p.SearchTerm == nil && p.FundingMin == nil && p.FundingMax == nil &&
		p.Categories == nil && p.Agencies == nil && p.Statuses == nil
}

func patchConstraint(f search.FilterState, name string, raw json.RawMessage, with func(search.FilterState, search.Constraint) search.FilterState) (search.FilterState, error) {
	if raw == nil {
		return f, nil
	}
	if string(raw) == "null" {
		return with(f, search.Unconstrained()), nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return f, fmt.Errorf("%s must be null or a list of strings", name)
	}
	return with(f, search.Values(values...)), nil
}
