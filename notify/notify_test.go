package notify

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCenterPrintsAndRecords(t *testing.T) {
	var out bytes.Buffer
	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	c := NewCenter(&out, nil, WithClock(func() time.Time { return at }))

	c.Success("Book added successfully!")
	n := c.Error("Failed to borrow book")

	assert.Equal(t, "✔ Book added successfully!\n✖ Failed to borrow book\n", out.String())
	assert.Equal(t, LevelError, n.Level)
	assert.Equal(t, at, n.At)
	assert.NotEmpty(t, n.ID)

	recent, err := c.Recent(0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "Failed to borrow book", recent[0].Message)
	assert.Equal(t, "Book added successfully!", recent[1].Message)
}

func TestMemoryHistoryIsBounded(t *testing.T) {
	h := NewMemoryHistory(3)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, h.Append(Notification{Message: msg}))
	}

	all, _ := h.Recent(0)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"e", "d", "c"}, messages(all))

	two, _ := h.Recent(2)
	assert.Equal(t, []string{"e", "d"}, messages(two))
}

func messages(ns []Notification) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.Message
	}
	return out
}
