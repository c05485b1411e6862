package coordinator

import (
	"context"
	"log/slog"
	"time"

	"github.com/stacklok/catalog-cache/internal/catalog"
	catalogsync "github.com/stacklok/catalog-cache/internal/sync"
)

// Reason explains an auto-sync decision.
type Reason int

const (
	// ReasonDue means the interval has elapsed since the last sync
	ReasonDue Reason = iota
	// ReasonNeverSynced means at least one content type was never synced
	ReasonNeverSynced
	// ReasonAutoSyncDisabled means the user turned auto-sync off
	ReasonAutoSyncDisabled
	// ReasonIntervalNotElapsed means the last sync is too recent
	ReasonIntervalNotElapsed
	// ReasonMeteredNetwork means the profile is wifi-only and the network is metered
	ReasonMeteredNetwork
	// ReasonAlreadyActive means a sync is already running for the profile
	ReasonAlreadyActive
	// ReasonRecentFailure means the last attempt failed less than
	// FailureRetryDelay ago
	ReasonRecentFailure
)

// FailureRetryDelay is how long a profile whose last attempt failed or was
// partial waits before auto-sync tries again.
const FailureRetryDelay = time.Hour

// ShouldSync reports whether the reason triggers a sync.
func (r Reason) ShouldSync() bool {
	return r == ReasonDue || r == ReasonNeverSynced
}

func (r Reason) String() string {
	switch r {
	case ReasonDue:
		return "sync-interval-elapsed"
	case ReasonNeverSynced:
		return "never-synced"
	case ReasonAutoSyncDisabled:
		return "auto-sync-disabled"
	case ReasonIntervalNotElapsed:
		return "interval-not-elapsed"
	case ReasonMeteredNetwork:
		return "metered-network"
	case ReasonAlreadyActive:
		return "already-active"
	case ReasonRecentFailure:
		return "recent-failure"
	default:
		return "unknown"
	}
}

// Decide evaluates the auto-sync policy of one profile. The last sync is the
// oldest successful sync across states; any state without one makes the
// profile eligible. A failed or partial attempt holds the profile back for
// FailureRetryDelay.
func Decide(
	settings *catalog.SyncSettings,
	states []*catalog.SyncState,
	metered bool,
	active bool,
	now time.Time,
) Reason {
	if !settings.AutoSyncEnabled {
		return ReasonAutoSyncDisabled
	}

	var oldest *time.Time
	for _, st := range states {
		if st.LastSyncAt == nil {
			oldest = nil
			break
		}
		if oldest == nil || st.LastSyncAt.Before(*oldest) {
			oldest = st.LastSyncAt
		}
	}
	reason := ReasonNeverSynced
	if oldest != nil {
		if now.Sub(*oldest) < settings.Interval() {
			return ReasonIntervalNotElapsed
		}
		reason = ReasonDue
	}
	if failed := lastFailure(states); failed != nil && now.Sub(failed.UpdatedAt) < FailureRetryDelay {
		return ReasonRecentFailure
	}

	if settings.WifiOnly && metered {
		return ReasonMeteredNetwork
	}
	if active {
		return ReasonAlreadyActive
	}
	return reason
}

// lastFailure returns the most recently updated state whose last attempt
// failed or was partial.
func lastFailure(states []*catalog.SyncState) *catalog.SyncState {
	var last *catalog.SyncState
	for _, st := range states {
		if st.LastOutcome != catalog.SyncOutcomeError && st.LastOutcome != catalog.SyncOutcomePartial {
			continue
		}
		if last == nil || st.UpdatedAt.After(last.UpdatedAt) {
			last = st
		}
	}
	return last
}

// NetworkClassifier tells whether the current network is metered.
type NetworkClassifier interface {
	Metered(ctx context.Context) bool
}

// StaticNetwork is a classifier with a fixed answer, set from configuration.
type StaticNetwork bool

// Metered implements NetworkClassifier.
func (n StaticNetwork) Metered(context.Context) bool {
	return bool(n)
}

// Notifier delivers a notice when an auto-triggered sync finishes.
type Notifier interface {
	NotifySyncComplete(ctx context.Context, progress catalogsync.Progress)
}

// LogNotifier writes notifications to the log.
type LogNotifier struct{}

// NotifySyncComplete implements Notifier.
func (LogNotifier) NotifySyncComplete(ctx context.Context, p catalogsync.Progress) {
	slog.InfoContext(ctx, "Catalog sync finished",
		"profile", p.ProfileID,
		"run_id", p.RunID,
		"status", p.Status,
		"items", p.ItemsProcessed,
		"errors", len(p.Errors))
}
