// Package offline persists downloaded tracks for playback without a
// network, tracks the storage quota, and evicts records when over budget.
package offline

import "time"

// Record describes one track held in the offline store. Records are
// created whole when a download completes and are only ever deleted, never
// partially updated.
type Record struct {
	TrackID      string    `json:"track_id"`
	Quality      string    `json:"quality"`
	SizeBytes    int64     `json:"size_bytes"`
	DownloadedAt time.Time `json:"downloaded_at"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"` // zero means never
}

// Expired reports whether the record has passed its expiry.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// AgeDays returns the whole days since the record was downloaded.
func (r Record) AgeDays(now time.Time) float64 {
	return now.Sub(r.DownloadedAt).Hours() / 24
}

// StorageQuota is the used/total byte budget for the offline store.
type StorageQuota struct {
	UsedBytes  int64
	TotalBytes int64
}

// AvailableBytes returns the remaining budget, never negative.
func (q StorageQuota) AvailableBytes() int64 {
	if avail := q.TotalBytes - q.UsedBytes; avail > 0 {
		return avail
	}
	return 0
}

// Usage returns used/total as a ratio, 0 when the total is unknown.
func (q StorageQuota) Usage() float64 {
	if q.TotalBytes <= 0 {
		return 0
	}
	return float64(q.UsedBytes) / float64(q.TotalBytes)
}

// QuotaSource reports the total storage budget. The platform quota API
// sits behind this; tests and the default path use a fixed budget.
type QuotaSource interface {
	TotalBytes() (int64, error)
}

// FixedQuota is a QuotaSource with a constant budget.
type FixedQuota int64

// TotalBytes returns the fixed budget.
func (f FixedQuota) TotalBytes() (int64, error) { return int64(f), nil }
