package workshop

import (
	"fmt"
	"strings"
	"time"
)

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Classify assigns the temporal status of w relative to now. A workshop
// without a date is scheduled for today and is always upcoming. Topic is
// left untouched.
func Classify(w *Workshop, now time.Time) *Workshop {
	today := Day(now)
	if !w.HasDate() {
		w.Date = today
		w.Status = StatusUpcoming
		return w
	}
	if Day(w.Date).Before(today) {
		w.Status = StatusPast
	} else {
		w.Status = StatusUpcoming
	}
	return w
}

// Partition splits classified workshops by status, keeping input order.
func Partition(ws []*Workshop) Collections {
	out := Collections{Upcoming: []*Workshop{}, Past: []*Workshop{}}
	for _, w := range ws {
		if w == nil {
			continue
		}
		switch w.Status {
		case StatusPast:
			out.Past = append(out.Past, w)
		default:
			out.Upcoming = append(out.Upcoming, w)
		}
	}
	return out
}

// DaysUntil returns the number of whole days from now's day to the
// workshop's day, rounded up; negative for past workshops.
func DaysUntil(w *Workshop, now time.Time) int {
	if !w.HasDate() {
		return 0
	}
	d := Day(w.Date).Sub(Day(now))
	return int((d + 24*time.Hour - 1) / (24 * time.Hour))
}

// DateStatus returns the countdown label shown on upcoming cards.
func DateStatus(w *Workshop, now time.Time) string {
	if n := DaysUntil(w, now); n > 0 {
		return fmt.Sprintf("%d days away", n)
	}
	return "Today"
}

// Filter returns the workshops matching topic and query. A topic of "all"
// or "" matches everything; query is a case-insensitive substring of the
// title, description or instructor.
func Filter(ws []*Workshop, topic string, query string) []*Workshop {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]*Workshop, 0, len(ws))
	for _, w := range ws {
		if topic != "" && topic != "all" && string(w.Topic) != topic {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(w.Title), q) &&
			!strings.Contains(strings.ToLower(w.Description), q) &&
			!strings.Contains(strings.ToLower(w.Instructor), q) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// RegistrationMessage is the confirmation shown after registering.
func RegistrationMessage(w *Workshop) string {
	return fmt.Sprintf("Registration successful for %q! You will receive a confirmation email shortly.", w.Title)
}
