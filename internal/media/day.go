package media

import (
	"fmt"
	"strings"
	"time"
)

// Day is a broadcast weekday, stored by its English name.
type Day string

const (
	Sunday    Day = "Sunday"
	Monday    Day = "Monday"
	Tuesday   Day = "Tuesday"
	Wednesday Day = "Wednesday"
	Thursday  Day = "Thursday"
	Friday    Day = "Friday"
	Saturday  Day = "Saturday"
)

var days = [...]Day{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// ParseDay accepts a weekday name in any case, ignoring surrounding whitespace.
func ParseDay(value string) (Day, error) {
	trimmed := strings.TrimSpace(value)
	for _, day := range days {
		if strings.EqualFold(trimmed, string(day)) {
			return day, nil
		}
	}
	return "", fmt.Errorf("unknown day %q", value)
}

// Weekday converts to the standard library representation.
func (d Day) Weekday() (time.Weekday, bool) {
	for i, day := range days {
		if day == d {
			return time.Weekday(i), true
		}
	}
	return 0, false
}
