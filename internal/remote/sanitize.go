package remote

import (
	"strings"
	"time"

	"github.com/Qubut/fba-boxes/internal/models"
)

var accountReplacer = strings.NewReplacer(
	".", "_dot_",
	"#", "_",
	"$", "_",
	"[", "_",
	"]", "_",
	"/", "_",
)

// SanitizeAccountID turns an email-like id into a valid document key. Only
// the first '@' is rewritten.
func SanitizeAccountID(id string) string {
	return accountReplacer.Replace(strings.Replace(id, "@", "_at_", 1))
}

var dateLayouts = []string{
	time.RFC3339Nano,
	models.TimeLayout,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ValidDate returns a usable timestamp for v, which may be a time, a
// formatted string or nothing. Anything unusable becomes the current time.
func ValidDate(v any) time.Time {
	return validDateAt(v, time.Now())
}

func validDateAt(v any, now time.Time) time.Time {
	switch t := v.(type) {
	case time.Time:
		if !t.IsZero() {
			return t.UTC()
		}
	case *time.Time:
		if t != nil && !t.IsZero() {
			return t.UTC()
		}
	case string:
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC()
			}
		}
	case int64:
		if t > 0 {
			return time.UnixMilli(t).UTC()
		}
	}
	return now.UTC()
}
