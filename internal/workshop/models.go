package workshop

import (
	"strings"
	"time"
)

// Topic is the subject-matter classification of a workshop.
type Topic string

const (
	TopicTechnology Topic = "technology"
	TopicBusiness   Topic = "business"
	TopicDesign     Topic = "design"
	TopicResearch   Topic = "research"
)

// Icon returns the Font Awesome icon name used for the topic badge.
func (t Topic) Icon() string {
	switch t {
	case TopicTechnology:
		return "laptop-code"
	case TopicBusiness:
		return "briefcase"
	case TopicDesign:
		return "palette"
	case TopicResearch:
		return "microscope"
	default:
		return "book"
	}
}

// Label returns the topic with its first letter upper-cased.
func (t Topic) Label() string {
	if t == "" {
		return ""
	}
	return strings.ToUpper(string(t[:1])) + string(t[1:])
}

// Status is the temporal bucket of a workshop.
type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusPast     Status = "past"
)

// Level is the audience skill level.
type Level string

const (
	LevelBeginner     Level = "Beginner"
	LevelIntermediate Level = "Intermediate"
	LevelAdvanced     Level = "Advanced"
	LevelAll          Level = "All Levels"
)

// Expert is a person listed under "Featured Experts".
type Expert struct {
	Name string `json:"name" yaml:"name"`
	Role string `json:"role" yaml:"role"`
}

// Reason is a bullet listed under "Why Attend?".
type Reason struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

// Workshop is the record extracted from one repository README.
type Workshop struct {
	ID               string    `json:"id" yaml:"id"`
	Title            string    `json:"title" yaml:"title"`
	Topic            Topic     `json:"topic" yaml:"topic"`
	Status           Status    `json:"status,omitempty" yaml:"status,omitempty"`
	Date             time.Time `json:"date,omitzero" yaml:"date,omitempty"`
	Description      string    `json:"description" yaml:"description"`
	Instructor       string    `json:"instructor" yaml:"instructor"`
	Image            string    `json:"image" yaml:"image"`
	Duration         string    `json:"duration" yaml:"duration"`
	Level            Level     `json:"level" yaml:"level"`
	RepoURL          string    `json:"repoUrl" yaml:"repoUrl"`
	ReadmeURL        string    `json:"readmeUrl" yaml:"readmeUrl"`
	FeaturedExperts  []Expert  `json:"featuredExperts" yaml:"featuredExperts"`
	WhyAttend        []Reason  `json:"whyAttend" yaml:"whyAttend"`
	HostedBy         string    `json:"hostedBy,omitempty" yaml:"hostedBy,omitempty"`
	RegistrationLink string    `json:"registrationLink,omitempty" yaml:"registrationLink,omitempty"`
}

// HasDate reports whether a date was extracted or assigned.
func (w *Workshop) HasDate() bool { return !w.Date.IsZero() }

// DateString returns the date as YYYY-MM-DD, or "" when absent.
func (w *Workshop) DateString() string {
	if !w.HasDate() {
		return ""
	}
	return w.Date.Format(time.DateOnly)
}

// FormattedDate returns the date in long US form, e.g. "January 10, 2025".
func (w *Workshop) FormattedDate() string {
	if !w.HasDate() {
		return ""
	}
	return w.Date.Format("January 2, 2006")
}

// Category returns the single display bucket: the status once classified,
// the topic before that.
func (w *Workshop) Category() string {
	if w.Status != "" {
		return string(w.Status)
	}
	return string(w.Topic)
}

// Collections holds the result of one assembly pass.
type Collections struct {
	Upcoming []*Workshop `json:"upcoming" yaml:"upcoming"`
	Past     []*Workshop `json:"past" yaml:"past"`
}

// Len returns the total number of workshops across both collections.
func (c Collections) Len() int { return len(c.Upcoming) + len(c.Past) }

// Find returns the workshop with the given id from either collection.
func (c Collections) Find(id string) (*Workshop, bool) {
	for _, ws := range [][]*Workshop{c.Upcoming, c.Past} {
		for _, w := range ws {
			if w.ID == id {
				return w, true
			}
		}
	}
	return nil, false
}
