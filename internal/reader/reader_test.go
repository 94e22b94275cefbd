package reader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognisys/memorybank/internal/store"
)

func TestCursorRoundTrip(t *testing.T) {
	cursor := encodeCursor(165)
	offset, err := decodeCursor(cursor)
	require.NoError(t, err)
	assert.Equal(t, 165, offset)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := decodeCursor("not-a-valid-cursor!!")
	assert.Error(t, err)
}

func TestDecodeCursorRejectsNegativeOffset(t *testing.T) {
	cursor := encodeCursor(-1)
	_, err := decodeCursor(cursor)
	assert.Error(t, err)
}

func TestFilterByTag(t *testing.T) {
	rows := []store.Block{
		{ID: "1", Tags: []string{"urgent", "infra"}},
		{ID: "2", Tags: []string{"later"}},
		{ID: "3", Tags: []string{"urgent"}},
	}
	filtered := filterByTag(rows, "urgent")
	assert.Len(t, filtered, 2)
	assert.Equal(t, "1", filtered[0].ID)
	assert.Equal(t, "3", filtered[1].ID)
}
