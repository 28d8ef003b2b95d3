package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsSelfEcho(t *testing.T) {
	tests := []struct {
		name        string
		displayName string
		isBot       bool
		want        bool
	}{
		{"relayed identity", "Alice [ID:123]", true, true},
		{"relayed identity with username", "Alice (@alice) [ID:123]", true, true},
		{"empty id digits", "Alice [ID:]", true, true},
		{"not a bot", "Alice [ID:123]", false, false},
		{"bot without marker", "SomeBot", true, false},
		{"marker not at end", "Alice [ID:123] hello", true, false},
		{"marker without space", "Alice[ID:123]", true, false},
		{"plain user", "alice", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSelfEcho(tt.displayName, tt.isBot))
		})
	}
}

func TestEchoSetConsumeExactlyOnce(t *testing.T) {
	s := NewEchoSet(time.Minute)

	assert.False(t, s.ConsumeJustDeleted("m1"))

	s.MarkJustDeleted("m1")
	assert.True(t, s.ConsumeJustDeleted("m1"))
	assert.False(t, s.ConsumeJustDeleted("m1"), "membership must be consumed by the first check")
}

func TestEchoSetSweep(t *testing.T) {
	s := NewEchoSet(time.Nanosecond)

	s.MarkJustDeleted("old")
	time.Sleep(time.Millisecond)
	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.ConsumeJustDeleted("old"))
}

func TestEchoSetSweepKeepsFresh(t *testing.T) {
	s := NewEchoSet(time.Hour)

	s.MarkJustDeleted("fresh")
	assert.Equal(t, 0, s.Sweep())
	assert.True(t, s.ConsumeJustDeleted("fresh"))
}
