package convo

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Hours is a weekly business-hours schedule. Days holds ISO weekdays
// (Monday=1 .. Sunday=7); Start and End are "HH:MM" with End exclusive.
type Hours struct {
	Days  map[int]struct{}
	Start string
	End   string
}

// Open reports whether now falls inside the schedule. A malformed schedule
// counts as open.
func (h Hours) Open(now time.Time) bool {
	weekday := int(now.Weekday())
	if weekday == 0 {
		weekday = 7 // ISO Sunday
	}
	if _, ok := h.Days[weekday]; !ok {
		return false
	}

	start, err := parseClock(h.Start)
	if err != nil {
		return true
	}
	end, err := parseClock(h.End)
	if err != nil {
		return true
	}
	minute := now.Hour()*60 + now.Minute()
	return minute >= start && minute < end
}

// String renders the schedule for prompt text, e.g. "08:00 to 17:00, Mon-Fri".
func (h Hours) String() string {
	names := []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
	var days []string
	for d := 1; d <= 7; d++ {
		if _, ok := h.Days[d]; ok {
			days = append(days, names[d-1])
		}
	}
	return fmt.Sprintf("%s to %s, %s", h.Start, h.End, strings.Join(days, ", "))
}

func parseClock(v string) (int, error) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("convo: %q is not HH:MM", v)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("convo: %q has invalid hour", v)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("convo: %q has invalid minute", v)
	}
	return hh*60 + mm, nil
}
