package ulid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAt_Monotonic(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_000)
	a := NewAt(at)
	b := NewAt(at)
	assert.Len(t, a, 26)
	assert.Less(t, a, b)

	got, err := Time(a)
	require.NoError(t, err)
	assert.True(t, got.Equal(at))
}

func TestTime_Invalid(t *testing.T) {
	_, err := Time("not-a-ulid")
	assert.Error(t, err)
}
