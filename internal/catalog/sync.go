package catalog

import (
	"fmt"
	"time"
)

// SyncOutcome is the result of the last sync of a profile and content type.
type SyncOutcome string

const (
	// SyncOutcomeNever means no sync has finished yet
	SyncOutcomeNever SyncOutcome = "never"
	// SyncOutcomeSuccess means every page was applied
	SyncOutcomeSuccess SyncOutcome = "success"
	// SyncOutcomePartial means the run finished with non-fatal page errors
	SyncOutcomePartial SyncOutcome = "partial"
	// SyncOutcomeError means the run aborted
	SyncOutcomeError SyncOutcome = "error"
	// SyncOutcomeCancelled means the run was cancelled
	SyncOutcomeCancelled SyncOutcome = "cancelled"
)

// SyncState tracks sync bookkeeping per (profile, content type).
type SyncState struct {
	ProfileID   string      `json:"profile_id"`
	ContentType ContentType `json:"content_type"`
	// LastSyncAt is the time of the last successful sync; nil means never synced.
	LastSyncAt  *time.Time  `json:"last_sync_at,omitempty"`
	LastOutcome SyncOutcome `json:"last_outcome"`
	LastError   string      `json:"last_error,omitempty"`
	// Cursor is the highest provider "added" timestamp applied so far.
	Cursor    int64     `json:"cursor"`
	ItemCount int       `json:"item_count"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// NeverSynced returns the state of a profile and content type without any successful sync.
func NeverSynced(profileID string, contentType ContentType) *SyncState {
	return &SyncState{
		ProfileID:   profileID,
		ContentType: contentType,
		LastOutcome: SyncOutcomeNever,
	}
}

// Accepted bounds of the auto-sync interval, in hours.
const (
	MinSyncIntervalHours = 6
	MaxSyncIntervalHours = 24 * 365
)

// SyncSettings is the per-profile auto-sync policy.
type SyncSettings struct {
	ProfileID         string    `json:"profile_id"`
	AutoSyncEnabled   bool      `json:"auto_sync_enabled"`
	SyncIntervalHours uint      `json:"sync_interval_hours"`
	WifiOnly          bool      `json:"wifi_only"`
	NotifyOnComplete  bool      `json:"notify_on_complete"`
	UpdatedAt         time.Time `json:"updated_at,omitzero"`
}

// DefaultSyncSettings returns the settings a profile starts with.
func DefaultSyncSettings(profileID string) *SyncSettings {
	return &SyncSettings{
		ProfileID:         profileID,
		AutoSyncEnabled:   true,
		SyncIntervalHours: 24,
	}
}

// Interval returns the sync interval as a duration.
func (s *SyncSettings) Interval() time.Duration {
	return time.Duration(s.SyncIntervalHours) * time.Hour
}

// Validate checks the settings against the accepted ranges.
func (s *SyncSettings) Validate() error {
	if s.SyncIntervalHours < MinSyncIntervalHours {
		return fmt.Errorf("%w: sync interval must be at least %d hours, got %d",
			ErrInvalidSettings, MinSyncIntervalHours, s.SyncIntervalHours)
	}
	if s.SyncIntervalHours > MaxSyncIntervalHours {
		return fmt.Errorf("%w: sync interval must be at most %d hours, got %d",
			ErrInvalidSettings, MaxSyncIntervalHours, s.SyncIntervalHours)
	}
	return nil
}
