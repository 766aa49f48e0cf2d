package search

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Page is one window of a paged query. Page numbers start at 0.
type Page[T any] struct {
	Items []T   `json:"items"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
	Total int64 `json:"total"`
}

// Window clamps page and size and returns them with the row offset.
func Window(page, size int) (int, int, int) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size, page * size
}
