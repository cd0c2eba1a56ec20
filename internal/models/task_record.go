package models

import "time"

// TaskRecord is the development hub's stored view of a job
type TaskRecord struct {
	ID            string    `json:"id" badgerhold:"key"`
	State         TaskState `json:"state"`
	StatusMessage string    `json:"status_message"`
	Progress      float64   `json:"progress"`  // raw progress, relative to MaxValue
	MaxValue      float64   `json:"max_value"` // defaults to 100
	SourceName    string    `json:"source_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	ExpiresAt     time.Time `json:"expires_at" badgerhold:"index"`
}

// Percent returns progress as a percentage rounded to two decimals, capped at 100
func (r *TaskRecord) Percent() float64 {
	if r.MaxValue <= 0 {
		return 0
	}
	percent := r.Progress / r.MaxValue * 100
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}
	return float64(int64(percent*100+0.5)) / 100
}

// IsExpired reports whether the record outlived its TTL at the given time
func (r *TaskRecord) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}
