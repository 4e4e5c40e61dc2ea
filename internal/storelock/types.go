package storelock

import (
	"errors"
	"time"
)

// ErrLocked is returned when another live process holds the store
var ErrLocked = errors.New("credential store is locked by another process")

// LockInfo is the content of the lock file
type LockInfo struct {
	PID      int       `json:"pid"`
	Hostname string    `json:"hostname"`
	SinceTS  time.Time `json:"since_ts"`
}

// SameOwner reports whether both records name the same process on the same host
func (l LockInfo) SameOwner(other LockInfo) bool {
	return l.PID == other.PID && l.Hostname == other.Hostname
}
