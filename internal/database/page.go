package database

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// ClampPage normalises list paging input
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
