// Package coordinator schedules automatic catalog syncs.
//
// The coordinator sits on top of sync.Manager. It owns no catalog data; on
// every tick it evaluates the auto-sync policy of each known profile and
// starts an incremental run for the ones that are due:
//
//   - auto-sync must be enabled for the profile
//   - the sync interval (at least six hours, enforced when settings are
//     written) must have elapsed since the oldest successful sync of any
//     content type; a content type that never synced makes the profile due
//   - wifi-only profiles are skipped while the network is metered
//   - profiles with an active run are skipped
//
// # Usage
//
//	manager := sync.NewManager(store, fetcher, profiles)
//	coord := coordinator.New(manager, store,
//	    coordinator.WithCheckInterval(5*time.Minute),
//	    coordinator.WithNetworkClassifier(coordinator.StaticNetwork(false)))
//
//	go coord.Start(ctx)
//	// ... run server ...
//	coord.Stop()
//
// An eligibility pass runs to completion before the next tick is taken, so
// passes never overlap. When a profile asks to be notified, the coordinator
// waits for the run in the background and hands the final progress to the
// configured Notifier.
package coordinator
