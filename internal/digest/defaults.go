package digest

import "github.com/skehlet/dailymail/internal/domain"

// Field defaults applied before a record is read anywhere else.
const (
	DefaultFeedTitle = "Miscellaneous"
	DefaultTitle     = "(No Title)"
	DefaultPublished = "(No Date)"
	DefaultSummary   = "(No Summary)"
)

var fieldDefaults = []struct {
	field func(*domain.Record) *string
	value string
}{
	{func(r *domain.Record) *string { return &r.FeedTitle }, DefaultFeedTitle},
	{func(r *domain.Record) *string { return &r.Title }, DefaultTitle},
	{func(r *domain.Record) *string { return &r.Published }, DefaultPublished},
	{func(r *domain.Record) *string { return &r.Summary }, DefaultSummary},
}

// ApplyDefaults fills empty display fields of rec from the defaults table.
// Optional fields such as notable_aspects and url stay empty.
func ApplyDefaults(rec *domain.Record) {
	for _, d := range fieldDefaults {
		if p := d.field(rec); *p == "" {
			*p = d.value
		}
	}
}
