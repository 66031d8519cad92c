package domain

// Search filter operators used by the sync.
const (
	OperatorEQ          = "EQ"
	OperatorHasProperty = "HAS_PROPERTY"
)

// SearchRequest is the body of POST /crm/v3/objects/{type}/search. The sync
// only ever sends one filter group.
type SearchRequest struct {
	FilterGroups []FilterGroup `json:"filterGroups,omitempty"`
	Properties   []string      `json:"properties,omitempty"`
	Limit        int           `json:"limit,omitempty"`
	After        string        `json:"after,omitempty"`
}

// FilterGroup is a group of filters combined with AND.
type FilterGroup struct {
	Filters []Filter `json:"filters"`
}

// Filter compares one property. HAS_PROPERTY takes no value.
type Filter struct {
	PropertyName string   `json:"propertyName"`
	Operator     string   `json:"operator"`
	Value        string   `json:"value,omitempty"`
	Values       []string `json:"values,omitempty"`
}

// SearchResult is one page of search hits. Total counts every match, not
// just this page.
type SearchResult struct {
	Total   int       `json:"total"`
	Results []*Object `json:"results"`
	Paging  *Paging   `json:"paging,omitempty"`
}

// Paging is the cursor block HubSpot attaches to list and search responses.
// A missing Next marks the last page.
type Paging struct {
	Next *PagingNext `json:"next,omitempty"`
}

// PagingNext holds the cursor for the next page.
type PagingNext struct {
	After string `json:"after"`
}

// NextAfter returns the next-page cursor, or "" on the last page.
func (p *Paging) NextAfter() string {
	if p == nil || p.Next == nil {
		return ""
	}
	return p.Next.After
}
