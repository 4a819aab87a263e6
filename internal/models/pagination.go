package models

// PageInfo describes one page of a paginated result set.
type PageInfo struct {
	Page         int  `json:"page"`
	PageSize     int  `json:"page_size"`
	NumPages     int  `json:"num_pages"`
	HasNext      bool `json:"has_next"`
	HasPrev      bool `json:"has_prev"`
	StartIndex   int  `json:"start_index"`
	EndIndex     int  `json:"end_index"`
	TotalResults int  `json:"total_results"`
}

// NewPageInfo computes page bookkeeping for one page of a result set
// with the given total size. Indexes are 1-based; an empty result set
// yields zero indexes.
func NewPageInfo(page, pageSize, total int) PageInfo {
	numPages := total / pageSize
	if total%pageSize != 0 || numPages == 0 {
		numPages++
	}
	start := (page-1)*pageSize + 1
	end := page * pageSize
	if end > total {
		end = total
	}
	if total == 0 {
		start = 0
		end = 0
	}
	return PageInfo{
		Page:         page,
		PageSize:     pageSize,
		NumPages:     numPages,
		HasNext:      page < numPages,
		HasPrev:      page > 1,
		StartIndex:   start,
		EndIndex:     end,
		TotalResults: total,
	}
}

// Paginated couples one page of entities with its page bookkeeping.
type Paginated[T any] struct {
	Entities []T      `json:"entities"`
	PageInfo PageInfo `json:"page_info"`
}
