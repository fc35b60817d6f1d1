package database

import "time"

// SetClock replaces the repository clock.
func (r *LedgerRepository) SetClock(now func() time.Time) {
	r.now = now
}
