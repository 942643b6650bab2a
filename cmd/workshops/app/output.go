package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
	"workshops.nibm.studio/internal/catalog/github"
	"workshops.nibm.studio/internal/database"
	"workshops.nibm.studio/internal/workshop"
)

// Format selects how command results are printed.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates an --output value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
	}
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// Printer writes command results to w in the selected format. Now is used
// for relative dates in text output.
type Printer struct {
	W      io.Writer
	Format Format
	Now    time.Time
}

func (p *Printer) structured(v any) (bool, error) {
	switch p.Format {
	case FormatJSON:
		enc := json.NewEncoder(p.W)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(p.W)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// Collections prints the upcoming and past workshops.
func (p *Printer) Collections(cols workshop.Collections) error {
	if ok, err := p.structured(cols); ok {
		return err
	}
	for _, section := range []struct {
		title string
		list  []*workshop.Workshop
	}{
		{"Upcoming", cols.Upcoming},
		{"Past", cols.Past},
	} {
		fmt.Fprintf(p.W, "%s (%d)\n", section.title, len(section.list))
		if len(section.list) == 0 {
			continue
		}
		t := newTable("ID", "TITLE", "TOPIC", "DATE", "WHEN")
		for _, w := range section.list {
			t.Row(w.ID, w.Title, w.Topic.Label(), dateOrTBA(w), workshop.DateStatus(w, p.Now))
		}
		fmt.Fprintln(p.W, t.Render())
	}
	return nil
}

// Workshop prints a single workshop record.
func (p *Printer) Workshop(w *workshop.Workshop) error {
	if ok, err := p.structured(w); ok {
		return err
	}
	t := newTable("FIELD", "VALUE").
		Row("ID", w.ID).
		Row("Title", w.Title).
		Row("Description", w.Description).
		Row("Date", dateOrTBA(w)).
		Row("Status", string(w.Status)).
		Row("Topic", w.Topic.Label()).
		Row("Level", string(w.Level)).
		Row("Instructor", w.Instructor).
		Row("Duration", w.Duration).
		Row("Hosted by", w.HostedBy).
		Row("Repository", w.RepoURL)
	if w.RegistrationLink != "" {
		t.Row("Registration", w.RegistrationLink)
	}
	for _, e := range w.FeaturedExperts {
		t.Row("Expert", strings.TrimSpace(e.Name+" "+parens(e.Role)))
	}
	for _, r := range w.WhyAttend {
		t.Row("Why attend", r.Title)
	}
	_, err := fmt.Fprintln(p.W, t.Render())
	return err
}

// RateLimit prints the GitHub rate-limit headers.
func (p *Printer) RateLimit(rl *github.RateLimit) error {
	if ok, err := p.structured(rl); ok {
		return err
	}
	reset := "-"
	if !rl.Reset.IsZero() {
		reset = humanize.RelTime(rl.Reset, p.Now, "ago", "from now")
	}
	t := newTable("LIMIT", "REMAINING", "USED", "RESET", "EXHAUSTED").
		Row(strconv.Itoa(rl.Limit), strconv.Itoa(rl.Remaining), strconv.Itoa(rl.Used), reset, strconv.FormatBool(rl.Exhausted))
	_, err := fmt.Fprintln(p.W, t.Render())
	return err
}

// Snapshots prints stored snapshot summaries, newest first.
func (p *Printer) Snapshots(list []database.SnapshotSummary) error {
	if list == nil {
		list = []database.SnapshotSummary{}
	}
	if ok, err := p.structured(list); ok {
		return err
	}
	if len(list) == 0 {
		_, err := fmt.Fprintln(p.W, "No snapshots stored.")
		return err
	}
	t := newTable("ID", "ORGANIZATION", "ASSEMBLED", "AGE", "UPCOMING", "PAST")
	for _, s := range list {
		t.Row(
			strconv.FormatUint(s.ID, 10),
			s.Organization,
			s.AssembledAt.UTC().Format(time.RFC3339),
			humanize.RelTime(s.AssembledAt, p.Now, "ago", "from now"),
			humanize.Comma(int64(s.Upcoming)),
			humanize.Comma(int64(s.Past)),
		)
	}
	_, err := fmt.Fprintln(p.W, t.Render())
	return err
}

func dateOrTBA(w *workshop.Workshop) string {
	if !w.HasDate() {
		return "TBA"
	}
	return w.DateString()
}

func parens(s string) string {
	if s == "" {
		return ""
	}
	return "(" + s + ")"
}
