package shared

// ListFilters is the common filter set for master-data listings.
type ListFilters struct {
	Search  string
	Page    int
	PerPage int
}

// Clamp normalises paging values.
func (f ListFilters) Clamp() ListFilters {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = 20
	}
	if f.PerPage > 200 {
		f.PerPage = 200
	}
	return f
}

// Offset computes the row offset for the current page.
func (f ListFilters) Offset() int {
	return (f.Page - 1) * f.PerPage
}
