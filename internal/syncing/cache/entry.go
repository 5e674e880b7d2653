package cache

import "time"

// Entry is one cached payload. It is never mutated after a write;
// the next write of the same key replaces it wholesale.
type Entry[T any] struct {
	Key      string    `json:"key"`
	Payload  T         `json:"payload"`
	StoredAt time.Time `json:"stored_at"`
}

// Age returns how old the entry is at now. Entries stamped in the future
// count as age zero.
func (e Entry[T]) Age(now time.Time) time.Duration {
	age := now.Sub(e.StoredAt)
	if age < 0 {
		return 0
	}
	return age
}
