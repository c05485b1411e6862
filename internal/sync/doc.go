// Package sync implements the sync orchestrator: it pulls catalog pages from
// a sources.Fetcher and writes them to the cache store, one run per profile.
//
// # Runs
//
// StartSync registers a run for a profile and returns immediately with a
// Handle. At most one run is active per profile; a second StartSync fails
// with catalog.ErrAlreadyActive. Runs of different profiles proceed in
// parallel.
//
// A run walks the configured content types in order. Categories of all
// content types are prefetched concurrently when the run starts. For each
// content type the run fetches pages until the provider reports no more:
//
//   - incremental runs ask only for items newer than the stored cursor and
//     never delete anything
//   - full runs fetch everything and, when every page succeeded, reconcile
//     the cache against the complete set of seen ids
//
// # Failures
//
// A page fetch is retried with exponential backoff. A page that still fails
// is recorded as a non-fatal error and the run moves on. Rejected credentials
// are fatal. A batch that fails to write is retried once; two consecutive
// failed batches abort the run.
//
// # Cancellation
//
// CancelSync sets a flag that the run checks before every fetch and every
// write. Batches already written stay written.
//
// # Progress
//
// GetProgress returns a snapshot of the run: status, fraction complete,
// items processed and the ordered list of errors. A finished run stays
// visible for the configured retention and then reads as Idle.
package sync
