package relay

import (
	"regexp"
	"sync"
	"time"
)

// Relayed messages are posted under "<name> [ID:<digits>]" style identities,
// which is the only marker available to recognize them when they come back as
// create events. Best effort, not a security boundary.
var selfEchoPattern = regexp.MustCompile(` \[ID:\d*\]$`)

// IsSelfEcho reports whether a message was authored by the relay itself,
// judged by the bot flag plus the display-name convention.
func IsSelfEcho(displayName string, isBot bool) bool {
	return isBot && selfEchoPattern.MatchString(displayName)
}

// EchoSet remembers target message ids the relay itself just deleted, so the
// resulting delete events are not cascaded back. Membership is consumed
// exactly once. Entries that never echo back (the remote message was already
// gone) are evicted after the TTL by Sweep; losing the set on restart is safe,
// the worst case being a harmless delete of an already-deleted message.
type EchoSet struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
}

func NewEchoSet(ttl time.Duration) *EchoSet {
	return &EchoSet{
		ttl:     ttl,
		entries: make(map[string]time.Time),
	}
}

// MarkJustDeleted records that the relay is about to delete the given target
// message.
func (s *EchoSet) MarkJustDeleted(messageID string) {
	s.mu.Lock()
	s.entries[messageID] = time.Now()
	s.mu.Unlock()
}

// ConsumeJustDeleted reports whether the given delete event was caused by the
// relay itself, removing the entry so a second event for the same id is no
// longer treated as self-caused.
func (s *EchoSet) ConsumeJustDeleted(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[messageID]; !ok {
		return false
	}
	delete(s.entries, messageID)
	return true
}

// Sweep evicts entries older than the TTL and returns how many were dropped.
func (s *EchoSet) Sweep() int {
	cutoff := time.Now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, at := range s.entries {
		if at.Before(cutoff) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// Len returns the current number of pending entries.
func (s *EchoSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
