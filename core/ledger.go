package core

import (
	"sync"

	"github.com/elum-utils/warden/models"
)

// Ledger counts warnings per user. A user reaching the maximum is reset to
// zero in the same step that reports the mute, so stored counts stay below max.
type Ledger struct {
	mu     sync.Mutex
	max    int
	counts map[models.UserKey]int
}

// NewLedger creates an empty ledger. maxWarnings below 1 is treated as 1.
func NewLedger(maxWarnings int) *Ledger {
	if maxWarnings < 1 {
		maxWarnings = 1
	}
	return &Ledger{max: maxWarnings, counts: make(map[models.UserKey]int)}
}

// Max returns the mute threshold.
func (l *Ledger) Max() int {
	return l.max
}

// RecordViolation increments the user's count and returns the new value.
// When the count reaches max the entry is cleared and shouldMute is true.
func (l *Ledger) RecordViolation(user models.UserKey) (count int, shouldMute bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	count = l.counts[user] + 1
	if count >= l.max {
		delete(l.counts, user)
		return count, true
	}
	l.counts[user] = count
	return count, false
}

// Count returns the current count, zero for unknown users.
func (l *Ledger) Count(user models.UserKey) int {
	l.mu.Lock()
	n := l.counts[user]
	l.mu.Unlock()
	return n
}

// Reset clears the user's count.
func (l *Ledger) Reset(user models.UserKey) {
	l.mu.Lock()
	delete(l.counts, user)
	l.mu.Unlock()
}

// Len returns the number of users holding a non-zero count.
func (l *Ledger) Len() int {
	l.mu.Lock()
	n := len(l.counts)
	l.mu.Unlock()
	return n
}
