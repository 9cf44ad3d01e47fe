package concorsi

// QueryResult is one page of a listing. It is built once per store query and
// never modified afterwards, so it is safe to share from the cache.
type QueryResult struct {
	Items      []Concorso    `json:"items"`
	HasMore    bool          `json:"has_more"`
	NextCursor string        `json:"next_cursor,omitempty"`
	Total      *int          `json:"total,omitempty"`
	Applied    FilterRequest `json:"applied"`
	Page       int           `json:"page,omitempty"`
}

func newQueryResult(records []Concorso, plan Plan, applied FilterRequest) QueryResult {
	hasMore := len(records) > plan.PageSize
	if hasMore {
		records = records[:plan.PageSize]
	}

	items := make([]Concorso, len(records))
	for i, c := range records {
		items[i] = c.Normalize()
	}

	result := QueryResult{
		Items:   items,
		HasMore: hasMore,
		Applied: applied,
		Page:    applied.Page,
	}
	if hasMore && len(items) > 0 {
		result.NextCursor = items[len(items)-1].ID
	}
	return result
}
