package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"workshops.nibm.studio/internal/workshop"
)

func TestRenderListWorkshopsQuery(t *testing.T) {
	tests := []struct {
		name  string
		args  ListWorkshopsArgs
		query string
		qargs []any
	}{
		{
			name:  "snapshot only",
			args:  ListWorkshopsArgs{SnapshotID: 7},
			query: "SELECT payload FROM workshops WHERE snapshot_id = $1 ORDER BY position",
			qargs: []any{uint64(7)},
		},
		{
			name:  "status",
			args:  ListWorkshopsArgs{SnapshotID: 7, Status: workshop.StatusPast},
			query: "SELECT payload FROM workshops WHERE snapshot_id = $1 AND status = $2 ORDER BY position",
			qargs: []any{uint64(7), "past"},
		},
		{
			name:  "topic",
			args:  ListWorkshopsArgs{SnapshotID: 7, Topic: workshop.TopicDesign},
			query: "SELECT payload FROM workshops WHERE snapshot_id = $1 AND topic = $2 ORDER BY position",
			qargs: []any{uint64(7), "design"},
		},
		{
			name:  "status and topic",
			args:  ListWorkshopsArgs{SnapshotID: 1, Status: workshop.StatusUpcoming, Topic: workshop.TopicResearch},
			query: "SELECT payload FROM workshops WHERE snapshot_id = $1 AND status = $2 AND topic = $3 ORDER BY position",
			qargs: []any{uint64(1), "upcoming", "research"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			query, qargs, err := RenderListWorkshopsQuery(tc.args)
			require.NoError(t, err)
			assert.Equal(t, tc.query, query)
			assert.Equal(t, tc.qargs, qargs)
		})
	}
}
