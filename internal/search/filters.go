package search

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// SortKey orders search results
type SortKey string

const (
	SortRelevance SortKey = "relevance"
	SortCloseDate SortKey = "close_date"
	SortFunding   SortKey = "funding"
	SortNewest    SortKey = "newest"
)

// Valid reports whether k is a known sort key
func (k SortKey) Valid() bool {
	switch k {
	case SortRelevance, SortCloseDate, SortFunding, SortNewest:
		return true
	}
	return false
}

// Constraint restricts an enumeration filter. The zero value is unconstrained.
// A constraint with an empty value set excludes everything.
type Constraint struct {
	constrained bool
	values      []string
}

// Unconstrained matches every value
func Unconstrained() Constraint {
	return Constraint{}
}

// Values matches exactly the given values. Duplicates and blanks are dropped.
func Values(values ...string) Constraint {
	seen := make(map[string]struct{}, len(values))
	set := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		set = append(set, v)
	}
	sort.Strings(set)
	return Constraint{constrained: true, values: set}
}

// IsUnconstrained reports whether the constraint matches every value
func (c Constraint) IsUnconstrained() bool {
	return !c.constrained
}

// ExcludesEverything reports whether the constraint can match nothing
func (c Constraint) ExcludesEverything() bool {
	return c.constrained && len(c.values) == 0
}

// Values returns a copy of the allowed values, nil when unconstrained
func (c Constraint) Values() []string {
	if !c.constrained {
		return nil
	}
	out := make([]string, len(c.values))
	copy(out, c.values)
	return out
}

// Equal reports whether both constraints allow the same values
func (c Constraint) Equal(o Constraint) bool {
	if c.constrained != o.constrained || len(c.values) != len(o.values) {
		return false
	}
	for i := range c.values {
		if c.values[i] != o.values[i] {
			return false
		}
	}
	return true
}

// Range bounds the funding amount. Zero means unbounded on that side.
type Range struct {
	Min float64
	Max float64
}

// normalize swaps inverted bounds and drops negative ones
func (r Range) normalize() Range {
	if r.Min < 0 {
		r.Min = 0
	}
	if r.Max < 0 {
		r.Max = 0
	}
	if r.Max > 0 && r.Min > r.Max {
		r.Min, r.Max = r.Max, r.Min
	}
	return r
}

// FilterState is an immutable snapshot of every search input. Each With
// method returns a new snapshot and leaves the receiver untouched.
type FilterState struct {
	searchTerm string
	funding    Range
	categories Constraint
	agencies   Constraint
	statuses   Constraint
	sort       SortKey
	page       int
}

// DefaultFilterState is the first page of an unfiltered search
func DefaultFilterState() FilterState {
	return FilterState{sort: SortRelevance, page: 1}
}

func (f FilterState) SearchTerm() string     { return f.searchTerm }
func (f FilterState) Funding() Range         { return f.funding }
func (f FilterState) Categories() Constraint { return f.categories }
func (f FilterState) Agencies() Constraint   { return f.agencies }
func (f FilterState) Statuses() Constraint   { return f.statuses }
func (f FilterState) Sort() SortKey          { return f.sort }
func (f FilterState) Page() int              { return f.page }

// WithSearchTerm returns a copy with the free-text query set
func (f FilterState) WithSearchTerm(term string) FilterState {
	f.searchTerm = strings.TrimSpace(term)
	return f
}

// WithFunding returns a copy with the funding range set
func (f FilterState) WithFunding(r Range) FilterState {
	f.funding = r.normalize()
	return f
}

// WithCategories returns a copy with the category constraint set
func (f FilterState) WithCategories(c Constraint) FilterState {
	f.categories = c
	return f
}

// WithAgencies returns a copy with the agency constraint set
func (f FilterState) WithAgencies(c Constraint) FilterState {
	f.agencies = c
	return f
}

// WithStatuses returns a copy with the status constraint set
func (f FilterState) WithStatuses(c Constraint) FilterState {
	f.statuses = c
	return f
}

// WithSort returns a copy with the sort key set; unknown keys fall back to relevance
func (f FilterState) WithSort(k SortKey) FilterState {
	if !k.Valid() {
		k = SortRelevance
	}
	f.sort = k
	return f
}

// WithPage returns a copy with the page set, never below 1
func (f FilterState) WithPage(page int) FilterState {
	if page < 1 {
		page = 1
	}
	f.page = page
	return f
}

// ExcludesEverything reports whether some constraint can match nothing, so
// the result is known to be empty without asking the service
func (f FilterState) ExcludesEverything() bool {
	return f.categories.ExcludesEverything() ||
		f.agencies.ExcludesEverything() ||
		f.statuses.ExcludesEverything()
}

// Equal reports whether both snapshots describe the same search
func (f FilterState) Equal(o FilterState) bool {
	return f.searchTerm == o.searchTerm &&
		f.funding == o.funding &&
		f.categories.Equal(o.categories) &&
		f.agencies.Equal(o.agencies) &&
		f.statuses.Equal(o.statuses) &&
		f.sort == o.sort &&
		f.page == o.page
}

// Params maps the snapshot to the search endpoint query. This is the one
// canonical filter-to-query mapping; unconstrained filters and unbounded
// range sides are omitted.
func (f FilterState) Params(pageSize int) url.Values {
	params := url.Values{}
	params.Set("page", strconv.Itoa(f.page))
	params.Set("limit", strconv.Itoa(pageSize))
	params.Set("sort", string(f.sort))
	if f.searchTerm != "" {
		params.Set("q", f.searchTerm)
	}
	if f.funding.Min > 0 {
		params.Set("funding_min", strconv.FormatFloat(f.funding.Min, 'f', -1, 64))
	}
	if f.funding.Max > 0 {
		params.Set("funding_max", strconv.FormatFloat(f.funding.Max, 'f', -1, 64))
	}
	setConstraint(params, "categories", f.categories)
	setConstraint(params, "agencies", f.agencies)
	setConstraint(params, "statuses", f.statuses)
	return params
}

func setConstraint(params url.Values, name string, c Constraint) {
	if c.IsUnconstrained() || c.ExcludesEverything() {
		return
	}
	params.Set(name, strings.Join(c.values, ","))
}
