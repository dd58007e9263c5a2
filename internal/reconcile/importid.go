package reconcile

import "time"

const (
	importDateFormat = "2006-01-02"
	// importIDSeparator joins date and document number. The 1C format
	// has no globally unique row identifier, so (date, number) is the
	// natural key; the separator just has to be stable across imports.
	importIDSeparator = "_"
)

// FormatImportID builds the deduplication key for a statement row:
// "YYYY-MM-DD_<number>", unique per organization.
func FormatImportID(date time.Time, number string) string {
	return date.Format(importDateFormat) + importIDSeparator + number
}
