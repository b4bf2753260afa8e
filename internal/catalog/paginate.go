package catalog

// PageSlice is one page of a listing.
type PageSlice[T any] struct {
	Items     []T  `json:"items"`
	Page      int  `json:"page"`
	PageSize  int  `json:"page_size"`
	PageCount int  `json:"page_count"`
	Total     int  `json:"total"`
	HasNext   bool `json:"has_next"`
	HasPrev   bool `json:"has_prev"`
}

// Paginate returns the 1-based page of items. Out-of-range pages clamp to the
// nearest valid page; an empty list yields page 1 of 1 with no items.
func Paginate[T any](items []T, page, size int) PageSlice[T] {
	if size <= 0 {
		size = len(items)
		if size == 0 {
			size = 1
		}
	}
	total := len(items)
	count := (total + size - 1) / size
	if count == 0 {
		count = 1
	}
	if page < 1 {
		page = 1
	}
	if page > count {
		page = count
	}
	start := (page - 1) * size
	end := start + size
	if end > total {
		end = total
	}
	window := make([]T, 0, end-start)
	window = append(window, items[start:end]...)
	return PageSlice[T]{
		Items:     window,
		Page:      page,
		PageSize:  size,
		PageCount: count,
		Total:     total,
		HasNext:   page < count,
		HasPrev:   page > 1,
	}
}
