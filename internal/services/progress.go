package services

import (
	"fmt"

	"typerace/internal/status"
)

// Validate checks word against the expected word at cursor and returns the
// next cursor. It fails with status.ErrOutOfOrderWord on a mismatch and with
// status.ErrInvalidMessage when the cursor is already past the last word.
func Validate(word string, cursor int, words []string) (int, error) {
	if cursor < 0 || cursor >= len(words) {
		return cursor, fmt.Errorf("%w: no word expected at %d", status.ErrInvalidMessage, cursor)
	}
	if word != words[cursor] {
		return cursor, status.ErrOutOfOrderWord
	}
	return cursor + 1, nil
}

// Tracker holds the word cursor of every racer in one running race.
type Tracker struct {
	words   []string
	cursors map[string]int
}

func NewTracker(words []string) *Tracker {
	return &Tracker{
		words:   words,
		cursors: make(map[string]int),
	}
}

func (t *Tracker) Words() int {
	return len(t.words)
}

func (t *Tracker) Track(userID string) {
	if _, ok := t.cursors[userID]; !ok {
		t.cursors[userID] = 0
	}
}

// Forget drops a racer that left mid-race.
func (t *Tracker) Forget(userID string) {
	delete(t.cursors, userID)
}

func (t *Tracker) Cursor(userID string) (int, bool) {
	c, ok := t.cursors[userID]
	return c, ok
}

// Check validates word for userID without moving the cursor. finished is true
// when word is the last word of the quote.
func (t *Tracker) Check(userID, word string) (next int, finished bool, err error) {
	cursor, ok := t.cursors[userID]
	if !ok {
		return 0, false, fmt.Errorf("%w: %s is not racing", status.ErrInvalidMessage, userID)
	}

	next, err = Validate(word, cursor, t.words)
	if err != nil {
		return cursor, false, err
	}
	return next, next == len(t.words), nil
}

// Commit moves userID's cursor to next. Cursors never move backwards.
func (t *Tracker) Commit(userID string, next int) {
	if cur, ok := t.cursors[userID]; ok && next > cur {
		t.cursors[userID] = next
	}
}

func (t *Tracker) Finished(userID string) bool {
	c, ok := t.cursors[userID]
	return ok && c >= len(t.words)
}

// Racing counts tracked players who have not typed the last word yet.
func (t *Tracker) Racing() int {
	n := 0
	for _, c := range t.cursors {
		if c < len(t.words) {
			n++
		}
	}
	return n
}
