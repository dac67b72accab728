package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID string
}

func TestTrimReportsNextPage(t *testing.T) {
	rows := []*row{{ID: "3"}, {ID: "2"}, {ID: "1"}}
	kept, info := Trim(rows, 2, func(r *row) Cursor { return Cursor{ID: r.ID, CreatedAt: "2024-01-01T00:00:00Z"} })

	require.Len(t, kept, 2)
	assert.True(t, info.HasMore)

	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, "2", cursor.ID)
}

func TestTrimLastPage(t *testing.T) {
	rows := []*row{{ID: "1"}}
	kept, info := Trim(rows, 2, func(r *row) Cursor { return Cursor{ID: r.ID} })
	assert.Len(t, kept, 1)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}
