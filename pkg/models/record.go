package models

// Column names used in result tables.
const (
	ColumnURL       = "url"
	ColumnTitle     = "title"
	ColumnCaption   = "caption"
	ColumnPostedAt  = "posted_at"
	ColumnLikes     = "likes"
	ColumnComments  = "comments"
	ColumnViewCount = "video_view_count"
)

// CoreColumns are present in every result table, in this order.
var CoreColumns = []string{ColumnURL, ColumnTitle, ColumnCaption, ColumnPostedAt}

// OptionalColumns may be requested by the caller.
var OptionalColumns = []string{ColumnLikes, ColumnComments, ColumnViewCount}

// IsCoreColumn reports whether name is one of CoreColumns.
func IsCoreColumn(name string) bool {
	for _, c := range CoreColumns {
		if c == name {
			return true
		}
	}
	return false
}

// IsKnownColumn reports whether name is a core or optional column.
func IsKnownColumn(name string) bool {
	if IsCoreColumn(name) {
		return true
	}
	for _, c := range OptionalColumns {
		if c == name {
			return true
		}
	}
	return false
}

// Record is one extracted item. Optional fields that were not requested or
// could not be read are empty strings.
type Record struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Caption   string `json:"caption"`
	PostedAt  string `json:"posted_at"`
	Likes     string `json:"likes"`
	Comments  string `json:"comments"`
	ViewCount string `json:"video_view_count"`
}

// Field returns the value stored under a column name, or "" for unknown names.
func (r Record) Field(column string) string {
	switch column {
	case ColumnURL:
		return r.URL
	case ColumnTitle:
		return r.Title
	case ColumnCaption:
		return r.Caption
	case ColumnPostedAt:
		return r.PostedAt
	case ColumnLikes:
		return r.Likes
	case ColumnComments:
		return r.Comments
	case ColumnViewCount:
		return r.ViewCount
	default:
		return ""
	}
}
