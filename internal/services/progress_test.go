package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typerace/internal/status"
)

func TestValidate(t *testing.T) {
	words := []string{"to", "be", "or", "not"}

	tests := []struct {
		name       string
		word       string
		cursor     int
		wantCursor int
		wantErr    error
	}{
		{"first word", "to", 0, 1, nil},
		{"middle word", "or", 2, 3, nil},
		{"last word", "not", 3, 4, nil},
		{"word from elsewhere in the text", "or", 1, 1, status.ErrOutOfOrderWord},
		{"case matters", "To", 0, 0, status.ErrOutOfOrderWord},
		{"no partial credit", "t", 0, 0, status.ErrOutOfOrderWord},
		{"past the end", "not", 4, 4, status.ErrInvalidMessage},
		{"negative cursor", "to", -1, -1, status.ErrInvalidMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, err := Validate(tt.word, tt.cursor, words)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCursor, next)
		})
	}
}

func TestTracker_CheckDoesNotMoveCursor(t *testing.T) {
	tr := NewTracker([]string{"a", "b"})
	tr.Track("u1")

	next, finished, err := tr.Check("u1", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, next)
	assert.False(t, finished)

	cursor, ok := tr.Cursor("u1")
	assert.True(t, ok)
	assert.Equal(t, 0, cursor)

	tr.Commit("u1", next)
	next, finished, err = tr.Check("u1", "b")
	require.NoError(t, err)
	assert.Equal(t, 2, next)
	assert.True(t, finished)
}

func TestTracker_RejectsUntrackedUser(t *testing.T) {
	tr := NewTracker([]string{"a"})

	_, _, err := tr.Check("ghost", "a")
	assert.ErrorIs(t, err, status.ErrInvalidMessage)
}

func TestTracker_CommitIsMonotonic(t *testing.T) {
	tr := NewTracker([]string{"a", "b", "c"})
	tr.Track("u1")

	tr.Commit("u1", 2)
	tr.Commit("u1", 1)
	tr.Commit("ghost", 3)

	cursor, _ := tr.Cursor("u1")
	assert.Equal(t, 2, cursor)
	_, ok := tr.Cursor("ghost")
	assert.False(t, ok)

	tr.Track("u1")
	cursor, _ = tr.Cursor("u1")
	assert.Equal(t, 2, cursor, "tracking again keeps the cursor")
}

func TestTracker_Racing(t *testing.T) {
	tr := NewTracker([]string{"a", "b"})
	tr.Track("u1")
	tr.Track("u2")
	tr.Track("u3")
	assert.Equal(t, 3, tr.Racing())
	assert.Equal(t, 2, tr.Words())

	tr.Commit("u1", 2)
	assert.True(t, tr.Finished("u1"))
	assert.Equal(t, 2, tr.Racing())

	tr.Forget("u2")
	assert.Equal(t, 1, tr.Racing())
	assert.False(t, tr.Finished("u2"))
}
