package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	id string
	at time.Time
}

func TestPageTrimsAndEncodesNextToken(t *testing.T) {
	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	rows := []*row{{"3", base.Add(2 * time.Minute)}, {"2", base.Add(time.Minute)}, {"1", base}}

	page, info := Page(rows, 2, func(r *row) Cursor { return NewCursor(r.id, r.at) })
	require.Len(t, page, 2)
	assert.True(t, info.HasMore)

	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, "2", cursor.ID)
	at, err := cursor.Time()
	require.NoError(t, err)
	assert.True(t, at.Equal(base.Add(time.Minute)))
}

func TestPageWithoutMore(t *testing.T) {
	rows := []*row{{"1", time.Now()}}
	page, info := Page(rows, 2, func(r *row) Cursor { return NewCursor(r.id, r.at) })
	assert.Len(t, page, 1)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, token := range []string{"garbage!", "e30", ""} {
		_, err := DecodeCursor(token)
		assert.ErrorIs(t, err, ErrInvalidToken, token)
	}
}

func TestSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Size())
	assert.Equal(t, 5, Pagination{PageSize: 5}.Size())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Size())
}
