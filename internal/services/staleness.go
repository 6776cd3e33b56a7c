package services

import "time"

// RefreshInterval is how long a project or member snapshot stays fresh.
const RefreshInterval = 12 * time.Hour

// NeedsSync reports whether a record last synced at lastSyncAt is due for a
// refresh. A record that never synced is always due.
func NeedsSync(lastSyncAt *time.Time) bool {
	return needsSyncAt(lastSyncAt, time.Now())
}

func needsSyncAt(lastSyncAt *time.Time, now time.Time) bool {
	if lastSyncAt == nil {
		return true
	}
	return now.Sub(*lastSyncAt) > RefreshInterval
}
