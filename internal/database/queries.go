package database

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"workshops.nibm.studio/internal/workshop"
)

type SaveSnapshotArgs struct {
	Organization string
	AssembledAt  time.Time
	Repos        []string
	// Workshops are stored in order; their position is kept.
	Workshops []*workshop.Workshop
	Readmes   map[string]string
}

type StoredSnapshot struct {
	ID           uint64
	Organization string
	AssembledAt  time.Time
	Repos        []string
	Workshops    []*workshop.Workshop
}

type SnapshotSummary struct {
	ID           uint64    `json:"id" yaml:"id"`
	Organization string    `json:"organization" yaml:"organization"`
	AssembledAt  time.Time `json:"assembledAt" yaml:"assembledAt"`
	Upcoming     int       `json:"upcoming" yaml:"upcoming"`
	Past         int       `json:"past" yaml:"past"`
}

type ListWorkshopsArgs struct {
	SnapshotID uint64
	Status     workshop.Status
	Topic      workshop.Topic
}

var InsertSnapshotQuery = strings.Join([]string{
	"INSERT INTO snapshots (organization, assembled_at, repos)",
	"VALUES ($1, $2, $3)",
	"RETURNING id",
}, " ")

var InsertWorkshopQuery = strings.Join([]string{
	"INSERT INTO workshops (snapshot_id, position, repo, status, topic, date, payload)",
	"VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)",
	"ON CONFLICT (snapshot_id, repo)",
	"DO UPDATE SET position = EXCLUDED.position, status = EXCLUDED.status,",
	"topic = EXCLUDED.topic, date = EXCLUDED.date, payload = EXCLUDED.payload",
}, " ")

var InsertReadmeQuery = strings.Join([]string{
	"INSERT INTO readmes (snapshot_id, repo, body)",
	"VALUES ($1, $2, $3)",
	"ON CONFLICT (snapshot_id, repo)",
	"DO UPDATE SET body = EXCLUDED.body",
}, " ")

var LatestSnapshotQuery = strings.Join([]string{
	"SELECT id, organization, assembled_at, repos",
	"FROM snapshots",
	"ORDER BY assembled_at DESC, id DESC",
	"LIMIT 1",
}, " ")

var ReadmeQuery = strings.Join([]string{
	"SELECT body FROM readmes",
	"WHERE snapshot_id = $1 AND repo = $2",
}, " ")

var ListSnapshotsQuery = strings.Join([]string{
	"SELECT s.id, s.organization, s.assembled_at,",
	"COUNT(w.repo) FILTER (WHERE w.status = 'upcoming'),",
	"COUNT(w.repo) FILTER (WHERE w.status = 'past')",
	"FROM snapshots s LEFT JOIN workshops w ON w.snapshot_id = s.id",
	"GROUP BY s.id",
	"ORDER BY s.assembled_at DESC, s.id DESC",
	"LIMIT $1",
}, " ")

var listWorkshopsQueryTmpl = template.Must(
	template.New("listWorkshops").Parse(strings.Join([]string{
		"SELECT payload FROM workshops",
		"WHERE snapshot_id = $1",
		"{{with .StatusPlaceholder}} AND status = {{.}}{{end}}",
		"{{with .TopicPlaceholder}} AND topic = {{.}}{{end}}",
		"ORDER BY position",
	}, " ")),
)

// RenderListWorkshopsQuery builds SQL and args for listing the workshops of a
// snapshot, optionally filtered by status and topic.
func RenderListWorkshopsQuery(args ListWorkshopsArgs) (string, []any, error) {
	qargs := []any{args.SnapshotID}
	var statusPlaceholder, topicPlaceholder string
	if args.Status != "" {
		qargs = append(qargs, string(args.Status))
		statusPlaceholder = fmt.Sprintf("$%d", len(qargs))
	}
	if args.Topic != "" {
		qargs = append(qargs, string(args.Topic))
		topicPlaceholder = fmt.Sprintf("$%d", len(qargs))
	}
	var buf bytes.Buffer
	if err := listWorkshopsQueryTmpl.Execute(&buf, map[string]any{
		"StatusPlaceholder": statusPlaceholder,
		"TopicPlaceholder":  topicPlaceholder,
	}); err != nil {
		return "", nil, err
	}
	return strings.Join(strings.Fields(buf.String()), " "), qargs, nil
}
