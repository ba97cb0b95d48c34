package id

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsSortable(t *testing.T) {
	t.Parallel()

	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		assert.Less(t, prev, next)
		prev = next
	}
}

func TestPrefixedRoundTripsTime(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	s := Prefixed("pair", at)
	assert.True(t, strings.HasPrefix(s, "pair-"))

	got, ok := Time(s)
	require.True(t, ok)
	assert.True(t, at.Equal(got))
}

func TestTimeRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, ok := Time("not-an-id")
	assert.False(t, ok)
}
