package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatImportID(t *testing.T) {
	date := time.Date(2024, time.March, 5, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-05_105", FormatImportID(date, "105"))

	// The time of day never leaks into the key: two uploads of the same
	// statement must produce identical ids.
	later := time.Date(2024, time.March, 5, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, FormatImportID(date, "105"), FormatImportID(later, "105"))
}
