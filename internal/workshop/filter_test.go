package workshop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sample() []*Workshop {
	return []*Workshop{
		{ID: "python-basics", Title: "Python Programming Basics", Topic: TopicTechnology, Description: "Syntax and data structures.", Instructor: "Dr. Sunil Rathnayake"},
		{ID: "entrepreneurship", Title: "Entrepreneurship Workshop", Topic: TopicBusiness, Description: "Start and grow your own business.", Instructor: "Mr. Rajitha Kuruppu"},
		{ID: "graphic-design", Title: "Graphic Design Fundamentals", Topic: TopicDesign, Description: "Typography and colour theory.", Instructor: "Ms. Priyanka Bandara"},
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name  string
		topic string
		query string
		want  []string
	}{
		{"all", "all", "", []string{"python-basics", "entrepreneurship", "graphic-design"}},
		{"empty topic", "", "", []string{"python-basics", "entrepreneurship", "graphic-design"}},
		{"by topic", "business", "", []string{"entrepreneurship"}},
		{"by title", "all", "python", []string{"python-basics"}},
		{"by description", "all", "TYPOGRAPHY", []string{"graphic-design"}},
		{"by instructor", "all", "kuruppu", []string{"entrepreneurship"}},
		{"topic and query", "design", "python", []string{}},
		{"no match", "research", "", []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Filter(sample(), tc.topic, tc.query)
			ids := make([]string, 0, len(got))
			for _, w := range got {
				ids = append(ids, w.ID)
			}
			assert.Equal(t, tc.want, ids)
		})
	}
}

func TestTopicIcon(t *testing.T) {
	assert.Equal(t, "laptop-code", TopicTechnology.Icon())
	assert.Equal(t, "briefcase", TopicBusiness.Icon())
	assert.Equal(t, "palette", TopicDesign.Icon())
	assert.Equal(t, "microscope", TopicResearch.Icon())
	assert.Equal(t, "book", Topic("cooking").Icon())
	assert.Equal(t, "Research", TopicResearch.Label())
	assert.Equal(t, "", Topic("").Label())
}

func TestWorkshopDates(t *testing.T) {
	w := &Workshop{Date: time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, "2025-01-10", w.DateString())
	assert.Equal(t, "January 10, 2025", w.FormattedDate())

	var empty Workshop
	assert.False(t, empty.HasDate())
	assert.Empty(t, empty.DateString())
	assert.Empty(t, empty.FormattedDate())
}

func TestCategory(t *testing.T) {
	w := &Workshop{Topic: TopicBusiness}
	assert.Equal(t, "business", w.Category())
	w.Status = StatusPast
	assert.Equal(t, "past", w.Category())
}

func TestRegistrationMessage(t *testing.T) {
	msg := RegistrationMessage(&Workshop{Title: "Intro to Git"})
	assert.Equal(t, `Registration successful for "Intro to Git"! You will receive a confirmation email shortly.`, msg)
}
