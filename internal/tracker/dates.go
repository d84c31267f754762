package tracker

import (
	"fmt"
	"strings"
	"time"
)

const DisplayDateLayout = "Mon Jan 02 2006"

// accepted input layouts, tried in order; date-only values are UTC midnight
var inputDateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range inputDateLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date: %q", value)
}

func FormatDate(t time.Time) string {
	return t.UTC().Format(DisplayDateLayout)
}
