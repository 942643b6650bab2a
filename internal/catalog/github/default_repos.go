package github

// DefaultFallbackRepos is the static list used when the organization listing
// cannot be retrieved.
var DefaultFallbackRepos = []string{
	"intro-to-git",
	"web-development-bootcamp",
	"python-for-data-science",
	"ui-ux-design-fundamentals",
	"cloud-computing-with-aws",
	"digital-marketing-essentials",
	"research-methodology",
}
