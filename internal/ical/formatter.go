package ical

import (
	"fmt"
	"strings"
	"time"

	"workshops.nibm.studio/internal/workshop"
)

const (
	dateTimeFormat = "20060102T150405Z"
	dateFormat     = "20060102"
	maxLineOctets  = 75
)

// Calendar describes the feed wrapping the workshop events.
type Calendar struct {
	Name        string
	Description string
	// Domain qualifies event UIDs, e.g. the organization name.
	Domain string
	// Stamp is written as DTSTAMP on every event.
	Stamp time.Time
}

// Format renders the workshops as an iCalendar feed of all-day events.
// Workshops without a date are omitted.
func Format(cal Calendar, ws []*workshop.Workshop) string {
	var builder strings.Builder

	builder.WriteString("BEGIN:VCALENDAR\r\n")
	builder.WriteString("VERSION:2.0\r\n")
	builder.WriteString("PRODID:-//workshops//workshops//EN\r\n")
	builder.WriteString("CALSCALE:GREGORIAN\r\n")
	builder.WriteString(fold(fmt.Sprintf("X-WR-CALNAME:%s", escapeText(cal.Name))))
	if cal.Description != "" {
		builder.WriteString(fold(fmt.Sprintf("X-WR-CALDESC:%s", escapeText(cal.Description))))
	}

	for _, w := range ws {
		if w == nil || !w.HasDate() {
			continue
		}
		builder.WriteString(formatEvent(cal, w))
	}

	builder.WriteString("END:VCALENDAR\r\n")

	return builder.String()
}

func formatEvent(cal Calendar, w *workshop.Workshop) string {
	var builder strings.Builder

	start := workshop.Day(w.Date)
	builder.WriteString("BEGIN:VEVENT\r\n")
	builder.WriteString(fold(fmt.Sprintf("UID:%s@%s", escapeText(w.ID), escapeText(cal.Domain))))
	builder.WriteString(fmt.Sprintf("DTSTAMP:%s\r\n", formatDateTime(cal.Stamp)))
	builder.WriteString(fmt.Sprintf("DTSTART;VALUE=DATE:%s\r\n", formatDate(start)))
	builder.WriteString(fmt.Sprintf("DTEND;VALUE=DATE:%s\r\n", formatDate(start.AddDate(0, 0, 1))))
	builder.WriteString(fold(fmt.Sprintf("SUMMARY:%s", escapeText(w.Title))))

	if w.Description != "" {
		builder.WriteString(fold(fmt.Sprintf("DESCRIPTION:%s", escapeText(description(w)))))
	}
	if w.HostedBy != "" {
		builder.WriteString(fold(fmt.Sprintf("ORGANIZER;CN=%s:%s", quoteParam(w.HostedBy), w.RepoURL)))
	}

	url := w.RegistrationLink
	if url == "" {
		url = w.RepoURL
	}
	if url != "" {
		builder.WriteString(fold(fmt.Sprintf("URL:%s", url)))
	}
	if w.Topic != "" {
		builder.WriteString(fmt.Sprintf("CATEGORIES:%s\r\n", escapeText(w.Topic.Label())))
	}

	builder.WriteString("END:VEVENT\r\n")

	return builder.String()
}

func description(w *workshop.Workshop) string {
	var parts []string
	parts = append(parts, w.Description)
	if w.Instructor != "" {
		parts = append(parts, "Instructor: "+w.Instructor)
	}
	if w.Duration != "" {
		parts = append(parts, "Duration: "+w.Duration)
	}
	if w.Level != "" {
		parts = append(parts, "Level: "+string(w.Level))
	}
	return strings.Join(parts, "\n")
}

func formatDateTime(t time.Time) string {
	return t.UTC().Format(dateTimeFormat)
}

func formatDate(t time.Time) string {
	return t.Format(dateFormat)
}

func escapeText(text string) string {
	text = strings.ReplaceAll(text, "\\", "\\\\")
	text = strings.ReplaceAll(text, ";", "\\;")
	text = strings.ReplaceAll(text, ",", "\\,")
	text = strings.ReplaceAll(text, "\r\n", "\\n")
	text = strings.ReplaceAll(text, "\n", "\\n")
	return text
}

func quoteParam(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, "'") + `"`
}

// fold splits a content line into 75-octet chunks joined by CRLF and a
// space, never breaking inside a UTF-8 sequence, and terminates it.
func fold(line string) string {
	if len(line) <= maxLineOctets {
		return line + "\r\n"
	}
	var b strings.Builder
	limit := maxLineOctets
	for len(line) > limit {
		cut := limit
		for cut > 0 && !isRuneStart(line[cut]) {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		// Continuation lines spend one octet on the leading space.
		limit = maxLineOctets - 1
	}
	b.WriteString(line)
	b.WriteString("\r\n")
	return b.String()
}

func isRuneStart(c byte) bool { return c&0xC0 != 0x80 }
