package encoding

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"workshops.nibm.studio/internal/workshop"
)

const (
	// DefaultOrganization owns the workshop repositories.
	DefaultOrganization = "NIBM-Workshops"
	// DefaultInstructor is used when no featured expert is listed.
	DefaultInstructor = "NIBM Expert"
	// DefaultDuration is used when no duration is mentioned.
	DefaultDuration = "1 day"

	placeholderImage = "https://source.unsplash.com/random/600x400/?"
	registerLabel    = "Register Now"
)

// options represents configuration options for parsing
type options struct {
	organization string
}

// Option is a function that configures options
type Option func(*options)

// WithOrganization sets the organization used to build repository URLs.
func WithOrganization(org string) Option {
	return func(o *options) {
		o.organization = org
	}
}

var (
	descriptionRe = regexp.MustCompile(`(?s)\*\*([^*\n]+)\*\*[ \t]*([^\s].*?)(?:\n[ \t]*\n|\n#|\z)`)
	durationRe    = regexp.MustCompile(`(?i)\b(\d+)\s+(hours?|days?|weeks?)\b`)
	roleRe        = regexp.MustCompile(`^\s*\(([^)]*)\)`)
)

type topicKeywords struct {
	topic    workshop.Topic
	keywords []string
}

// Order matters: the first group with any hit wins.
var topicGroups = []topicKeywords{
	{workshop.TopicTechnology, []string{"git", "version control", "programming"}},
	{workshop.TopicBusiness, []string{"business", "management", "marketing"}},
	{workshop.TopicDesign, []string{"design", "ui", "ux"}},
	{workshop.TopicResearch, []string{"research", "academic"}},
}

type section int

const (
	sectionNone section = iota
	sectionExperts
	sectionWhyAttend
	sectionHostedBy
)

var sectionLabels = []struct {
	label   string
	section section
}{
	{"featured experts", sectionExperts},
	{"why attend", sectionWhyAttend},
	{"hosted by", sectionHostedBy},
}

// UnmarshalWorkshop extracts a workshop record from a repository README.
// It never fails: every field that cannot be found falls back to a default.
// The returned record is not yet classified.
func UnmarshalWorkshop(in []byte, repo string, opts ...Option) *workshop.Workshop {
	options := &options{organization: DefaultOrganization}
	for _, opt := range opts {
		opt(options)
	}

	src := string(in)
	repoURL := fmt.Sprintf("https://github.com/%s/%s", options.organization, repo)
	w := &workshop.Workshop{
		ID:              repo,
		RepoURL:         repoURL,
		ReadmeURL:       repoURL + "/blob/main/README.md",
		FeaturedExperts: []workshop.Expert{},
		WhyAttend:       []workshop.Reason{},
	}

	root := goldmark.New().Parser().Parse(text.NewReader(in))
	walkDocument(root, in, w)

	if w.Title == "" {
		w.Title = Humanize(repo)
	}
	if m := descriptionRe.FindStringSubmatch(src); m != nil {
		w.Description = strings.TrimSpace(m[1]) + " " + strings.Join(strings.Fields(m[2]), " ")
	}
	if w.Image == "" {
		w.Image = placeholderImage + repo
	}
	if len(w.FeaturedExperts) > 0 {
		w.Instructor = w.FeaturedExperts[0].Name
	}
	if d, ok := ParseDate(src); ok {
		w.Date = d
	}
	w.Duration = DefaultDuration
	if m := durationRe.FindStringSubmatch(src); m != nil {
		w.Duration = m[1] + " " + strings.ToLower(m[2])
	}
	w.Level = DetectLevel(src)
	w.Topic = DetectTopic(src)

	if w.Description == "" {
		w.Description = fmt.Sprintf("Join our %s workshop to enhance your skills and knowledge.", w.Title)
	}
	if w.Instructor == "" {
		w.Instructor = DefaultInstructor
	}
	return w
}

// walkDocument fills the fields that depend on document structure: title,
// image, labeled sections and the registration link.
//
// A section opened by a heading lasts until the next heading. A section
// opened by a label paragraph ends at the first top-level block after its
// list. A "Hosted by" label only looks for bold text in its own block and
// the block right after it.
func walkDocument(root ast.Node, src []byte, w *workshop.Workshop) {
	current := sectionNone
	labelScoped, listSeen := false, false
	hostPending, hostBlocks := false, 0

	open := func(s section, byLabel bool) {
		current = s
		labelScoped, listSeen = byLabel, false
		hostPending = s == sectionHostedBy && w.HostedBy == ""
		hostBlocks = 1
	}

	_ = ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		if node.Parent() != nil && node.Parent().Kind() == ast.KindDocument {
			if hostPending {
				hostBlocks++
				if hostBlocks > 2 {
					hostPending = false
				}
			}
			if _, isList := node.(*ast.List); isList {
				listSeen = listSeen || current != sectionNone
			} else if labelScoped && listSeen {
				current, labelScoped, listSeen = sectionNone, false, false
			}
		}

		switch n := node.(type) {
		case *ast.Heading:
			headingText := DecodeTextFromNode(n, src)
			if n.Level == 1 && w.Title == "" && isATXHeading(n, src) {
				w.Title = stripTrailingGlyphs(headingText)
			}
			open(headingSection(headingText), false)

		case *ast.Paragraph:
			if _, inItem := n.Parent().(*ast.ListItem); inItem {
				break
			}
			if s := labelSection(DecodeTextFromNode(n, src)); s != sectionNone {
				open(s, true)
			}

		case *ast.Emphasis:
			if hostPending && n.Level == 2 {
				label := DecodeTextFromNode(n, src)
				if labelSection(label) == sectionHostedBy {
					return ast.WalkSkipChildren, nil
				}
				w.HostedBy = strings.TrimSpace(label)
				hostPending = false
				return ast.WalkSkipChildren, nil
			}

		case *ast.ListItem:
			switch current {
			case sectionExperts:
				if name, rest, ok := splitBoldItem(n, src); ok {
					w.FeaturedExperts = append(w.FeaturedExperts, workshop.Expert{
						Name: name,
						Role: parseRole(rest),
					})
				}
				return ast.WalkSkipChildren, nil
			case sectionWhyAttend:
				if title, rest, ok := splitBoldItem(n, src); ok {
					w.WhyAttend = append(w.WhyAttend, workshop.Reason{
						Title:       strings.TrimRight(title, ": "),
						Description: trimSeparators(rest),
					})
				}
				return ast.WalkSkipChildren, nil
			}

		case *ast.Image:
			dest := string(n.Destination)
			if w.Image == "" && (strings.HasPrefix(dest, "http://") || strings.HasPrefix(dest, "https://")) {
				w.Image = dest
			}

		case *ast.Link:
			if w.RegistrationLink == "" && strings.TrimSpace(DecodeTextFromNode(n, src)) == registerLabel {
				w.RegistrationLink = string(n.Destination)
			}
		}

		return ast.WalkContinue, nil
	})
}

// isATXHeading reports whether a heading was written with leading '#'
// characters rather than a setext underline.
func isATXHeading(n *ast.Heading, src []byte) bool {
	lines := n.Lines()
	if lines.Len() == 0 {
		return false
	}
	start := lines.At(0).Start
	for start > 0 && src[start-1] != '\n' {
		start--
	}
	line := strings.TrimLeft(string(src[start:lines.At(0).Start]), " ")
	return strings.HasPrefix(line, "#")
}

// splitBoldItem returns the first bold text of a list item and the text
// that follows it in the same block.
func splitBoldItem(item *ast.ListItem, src []byte) (string, string, bool) {
	block := item.FirstChild()
	if block == nil {
		return "", "", false
	}
	var bold string
	var rest strings.Builder
	found := false
	for child := block.FirstChild(); child != nil; child = child.NextSibling() {
		if !found {
			if em, ok := child.(*ast.Emphasis); ok && em.Level == 2 {
				bold = strings.TrimSpace(DecodeTextFromNode(em, src))
				found = true
			}
			continue
		}
		rest.WriteString(DecodeTextFromNode(child, src))
	}
	if !found || bold == "" {
		return "", "", false
	}
	return bold, strings.TrimSpace(rest.String()), true
}

func parseRole(rest string) string {
	if m := roleRe.FindStringSubmatch(rest); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimSeparators(rest)
}

func trimSeparators(s string) string {
	return strings.TrimSpace(strings.TrimLeft(s, " \t:-–—,"))
}

func headingSection(heading string) section {
	lower := strings.ToLower(heading)
	for _, l := range sectionLabels {
		if strings.Contains(lower, l.label) {
			return l.section
		}
	}
	return sectionNone
}

// labelSection recognizes a paragraph used as a section label, such as
// "**Featured Experts:**" or "🏛️ Hosted by **NIBM**".
func labelSection(paragraph string) section {
	lower := strings.ToLower(strings.TrimLeftFunc(paragraph, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}))
	for _, l := range sectionLabels {
		if strings.HasPrefix(lower, l.label) {
			return l.section
		}
	}
	return sectionNone
}

func stripTrailingGlyphs(s string) string {
	return strings.TrimSpace(strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) ||
			unicode.Is(unicode.So, r) ||
			unicode.Is(unicode.Sk, r) ||
			unicode.Is(unicode.Variation_Selector, r) ||
			r == '\u200d'
	}))
}

// Humanize turns a repository name into a title: hyphens become spaces and
// every word starts with an upper-case letter.
func Humanize(repo string) string {
	s := []rune(strings.ReplaceAll(repo, "-", " "))
	for i, r := range s {
		if isWordRune(r) && (i == 0 || !isWordRune(s[i-1])) {
			s[i] = unicode.ToUpper(r)
		}
	}
	return string(s)
}

func isWordRune(r rune) bool {
	return r == '_' || (r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)))
}

// DetectLevel returns the first skill level mentioned in the text.
func DetectLevel(src string) workshop.Level {
	lower := strings.ToLower(src)
	switch {
	case strings.Contains(lower, "beginner"):
		return workshop.LevelBeginner
	case strings.Contains(lower, "intermediate"):
		return workshop.LevelIntermediate
	case strings.Contains(lower, "advanced"):
		return workshop.LevelAdvanced
	default:
		return workshop.LevelAll
	}
}

// DetectTopic returns the topic of the first keyword group found in the text.
func DetectTopic(src string) workshop.Topic {
	lower := strings.ToLower(src)
	for _, g := range topicGroups {
		for _, kw := range g.keywords {
			if strings.Contains(lower, kw) {
				return g.topic
			}
		}
	}
	return workshop.TopicTechnology
}

// DecodeTextFromNode extracts text content from an AST node
func DecodeTextFromNode(node ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
