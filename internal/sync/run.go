package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sourcegraph/conc/pool"

	"github.com/stacklok/catalog-cache/internal/catalog"
	"github.com/stacklok/catalog-cache/internal/otel"
	"github.com/stacklok/catalog-cache/internal/sources"
)

var errCancelled = errors.New("sync cancelled")

// run is one sync of one profile.
type run struct {
	m       *defaultManager
	id      string
	profile *catalog.Profile
	full    bool

	cancelled   atomic.Bool
	cancelFetch context.CancelFunc
	done        chan struct{}

	mu       sync.Mutex
	progress Progress
}

func newRun(m *defaultManager, profile *catalog.Profile, full bool, cancel context.CancelFunc) *run {
	id := newRunID()
	return &run{
		m:           m,
		id:          id,
		profile:     profile,
		full:        full,
		cancelFetch: cancel,
		done:        make(chan struct{}),
		progress: Progress{
			ProfileID: profile.ID,
			RunID:     id,
			Full:      full,
			Status:    StatusPending,
			Errors:    []string{},
			StartedAt: m.now(),
		},
	}
}

// cancel sets the cooperative flag and aborts an in-flight fetch. Writes are
// never interrupted.
func (r *run) cancel() {
	r.cancelled.Store(true)
	r.cancelFetch()
}

func (r *run) snapshot() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress.clone()
}

func (r *run) update(fn func(p *Progress)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.progress)
}

func (r *run) setStatus(status Status) {
	r.update(func(p *Progress) { p.Status = status })
}

func (r *run) addError(msg string) {
	slog.Warn("Sync error",
		"profile", r.profile.ID,
		"run_id", r.id,
		"error", msg)
	r.update(func(p *Progress) { p.Errors = append(p.Errors, msg) })
}

// setFraction reports pagesDone of total pages of the index-th content type.
func (r *run) setFraction(index, pagesDone, total int) {
	share := 1 / float64(len(r.m.contentTypes))
	within := 0.0
	if total > 0 {
		within = min(float64(pagesDone)/float64(total), 1)
	}
	fraction := (float64(index) + within) * share
	r.update(func(p *Progress) {
		p.Fraction = max(p.Fraction, min(fraction, 1))
	})
}

func isFatal(err error) bool {
	return errors.Is(err, catalog.ErrRemoteAuth) || errors.Is(err, catalog.ErrCredentialsMissing)
}

func (r *run) execute(ctx context.Context) {
	start := r.m.now()
	ctx, span := otel.StartSpan(ctx, r.m.tracer, "sync.Run",
		otel.AttrProfileID.String(r.profile.ID),
		otel.AttrSyncRunID.String(r.id),
		otel.AttrSyncFull.Bool(r.full))
	defer span.End()

	r.m.metrics.SyncStarted(ctx)
	defer r.m.metrics.SyncFinished(ctx)

	err := r.syncAll(ctx)

	finishedAt := r.m.now()
	var outcome catalog.SyncOutcome
	r.update(func(p *Progress) {
		switch {
		case err == nil:
			p.Status = StatusCompleted
			p.Fraction = 1
			outcome = catalog.SyncOutcomeSuccess
			if len(p.Errors) > 0 {
				outcome = catalog.SyncOutcomePartial
			}
		case errors.Is(err, errCancelled):
			p.Status = StatusCancelled
			outcome = catalog.SyncOutcomeCancelled
		default:
			p.Status = StatusError
			p.Errors = append(p.Errors, err.Error())
			outcome = catalog.SyncOutcomeError
		}
		p.ContentType = ""
		p.FinishedAt = &finishedAt
	})
	if err != nil && !errors.Is(err, errCancelled) {
		otel.RecordError(span, err)
	}

	final := r.snapshot()
	r.m.metrics.RecordSyncDuration(ctx, r.profile.ID, r.full, string(outcome), finishedAt.Sub(start))
	slog.Info("Sync finished",
		"profile", r.profile.ID,
		"run_id", r.id,
		"full", r.full,
		"status", final.Status,
		"items", final.ItemsProcessed,
		"errors", len(final.Errors),
		"duration", finishedAt.Sub(start))
}

func (r *run) syncAll(ctx context.Context) error {
	categoryFailures, err := r.prefetchCategories(ctx)
	if err != nil {
		return err
	}
	for i, ct := range r.m.contentTypes {
		if err := r.syncContentType(ctx, i, ct, categoryFailures[ct]); err != nil {
			return err
		}
	}
	return nil
}

// prefetchCategories fetches the categories of every content type
// concurrently and writes them. A failure is non-fatal unless the provider
// rejected the credentials.
func (r *run) prefetchCategories(ctx context.Context) (map[catalog.ContentType]bool, error) {
	type result struct {
		categories []catalog.Category
		err        error
	}
	types := r.m.contentTypes
	results := make([]result, len(types))

	r.setStatus(StatusFetching)
	p := pool.New().WithMaxGoroutines(len(types))
	for i, ct := range types {
		p.Go(func() {
			categories, err := retry(ctx, r, "categories", func(ctx context.Context) ([]catalog.Category, error) {
				return r.m.fetcher.FetchCategories(ctx, r.profile, ct)
			})
			results[i] = result{categories: categories, err: err}
		})
	}
	p.Wait()

	failed := make(map[catalog.ContentType]bool)
	for i, ct := range types {
		res := results[i]
		if r.cancelled.Load() {
			return nil, r.abort(ctx, ct, errCancelled)
		}
		if res.err != nil {
			if isFatal(res.err) {
				return nil, r.abort(ctx, ct, res.err)
			}
			failed[ct] = true
			r.addError(fmt.Sprintf("%s categories: %v", ct, res.err))
			continue
		}

		r.setStatus(StatusSaving)
		err := r.write(ctx, func(ctx context.Context) error {
			return r.m.store.UpsertCategories(ctx, r.profile.ID, ct, res.categories, r.full)
		})
		if err != nil {
			failed[ct] = true
			r.addError(fmt.Sprintf("%s categories: %v", ct, err))
		}
	}
	return failed, nil
}

// pageTally tracks one content type of a run.
type pageTally struct {
	seen               []string
	storedCursor       int64
	maxAdded           int64
	pageErrors         int
	storageErrors      int
	consecutiveStorage int
}

func (r *run) syncContentType(ctx context.Context, index int, ct catalog.ContentType, categoriesFailed bool) error {
	ctx, span := otel.StartSpan(ctx, r.m.tracer, "sync.ContentType",
		append(otel.Catalog(r.profile.ID, string(ct)), otel.AttrSyncFull.Bool(r.full))...)
	defer span.End()

	// the first attempt creates the row, so a failed first run still leaves
	// its outcome behind
	if err := r.m.store.EnsureSyncState(context.WithoutCancel(ctx), r.profile.ID, ct); err != nil {
		return r.abort(ctx, ct, err)
	}
	state, err := r.m.store.GetSyncState(context.WithoutCancel(ctx), r.profile.ID, ct)
	if err != nil {
		return r.abort(ctx, ct, err)
	}

	var cursor int64
	tally := pageTally{storedCursor: state.Cursor}
	if !r.full {
		cursor = state.Cursor
		tally.maxAdded = state.Cursor
	}
	if categoriesFailed {
		tally.pageErrors++
	}

	r.update(func(p *Progress) { p.ContentType = ct })

	page, total := 0, 0
	for {
		if r.cancelled.Load() {
			return r.abort(ctx, ct, errCancelled)
		}
		r.setStatus(StatusFetching)

		req := sources.PageRequest{Cursor: cursor, Page: page}
		result, err := retry(ctx, r, "page", func(ctx context.Context) (*sources.Page, error) {
			return r.m.fetcher.FetchPage(ctx, r.profile, ct, req)
		})
		if err != nil {
			if r.cancelled.Load() {
				return r.abort(ctx, ct, errCancelled)
			}
			if isFatal(err) {
				return r.abort(ctx, ct, err)
			}
			tally.pageErrors++
			r.addError(fmt.Sprintf("%s page %d: %v", ct, page+1, err))
			if total > 0 && page+1 < total {
				page++
				r.setFraction(index, page, total)
				continue
			}
			break
		}

		total = result.Total
		r.setStatus(StatusProcessing)
		if result.Skipped > 0 {
			slog.Debug("Provider records skipped",
				"profile", r.profile.ID,
				"content_type", ct,
				"page", page,
				"skipped", result.Skipped)
		}
		for i := range result.Items {
			item := &result.Items[i]
			if r.full {
				tally.seen = append(tally.seen, item.ExternalID)
			}
			if !item.AddedAt.IsZero() {
				tally.maxAdded = max(tally.maxAdded, item.AddedAt.Unix())
			}
		}

		if len(result.Items) > 0 {
			if r.cancelled.Load() {
				return r.abort(ctx, ct, errCancelled)
			}
			if err := r.saveBatch(ctx, ct, result.Items, &tally); err != nil {
				return r.abort(ctx, ct, err)
			}
		}

		r.setFraction(index, page+1, total)
		if !result.HasMore {
			break
		}
		page = max(result.NextPage, page+1)
	}

	return r.finishContentType(ctx, index, ct, &tally)
}

// saveBatch writes one page. A failed batch is retried once; the returned
// error is non-nil only when the run must abort.
func (r *run) saveBatch(ctx context.Context, ct catalog.ContentType, items []catalog.Item, tally *pageTally) error {
	r.setStatus(StatusSaving)

	var written int
	err := r.write(ctx, func(ctx context.Context) error {
		n, err := r.m.store.UpsertBatch(ctx, r.profile.ID, ct, items)
		written = n
		return err
	})
	if err != nil {
		tally.storageErrors++
		tally.consecutiveStorage++
		if tally.consecutiveStorage >= maxConsecutiveStorageFailures {
			return fmt.Errorf("%d consecutive batches failed to write: %w", tally.consecutiveStorage, err)
		}
		r.addError(fmt.Sprintf("%s batch of %d items: %v", ct, len(items), err))
		return nil
	}

	tally.consecutiveStorage = 0
	r.update(func(p *Progress) { p.ItemsProcessed += written })
	r.m.metrics.AddItemsWritten(ctx, r.profile.ID, string(ct), written)
	return nil
}

// write runs a storage operation detached from cancellation, retrying once.
func (r *run) write(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx = context.WithoutCancel(ctx)
	err := fn(ctx)
	if err == nil {
		return nil
	}
	slog.Warn("Storage write failed, retrying once",
		"profile", r.profile.ID,
		"run_id", r.id,
		"error", err)
	return fn(ctx)
}

func (r *run) finishContentType(ctx context.Context, index int, ct catalog.ContentType, tally *pageTally) error {
	ctx = context.WithoutCancel(ctx)
	defer r.setFraction(index, 1, 1)

	if tally.pageErrors > 0 || tally.storageErrors > 0 {
		msg := fmt.Sprintf("%d page errors, %d failed batches", tally.pageErrors, tally.storageErrors)
		r.recordOutcome(ctx, ct, catalog.SyncOutcomePartial, msg)
		return nil
	}

	if r.full {
		removed, err := r.m.store.Reconcile(ctx, r.profile.ID, ct, tally.seen)
		if err != nil {
			r.addError(fmt.Sprintf("%s reconcile: %v", ct, err))
			r.recordOutcome(ctx, ct, catalog.SyncOutcomePartial, err.Error())
			return nil
		}
		if removed > 0 {
			slog.Info("Removed items no longer offered by the provider",
				"profile", r.profile.ID,
				"content_type", ct,
				"removed", removed)
		}
	}

	count, err := r.m.store.CountItems(ctx, r.profile.ID, ct)
	if err != nil {
		r.addError(fmt.Sprintf("%s count: %v", ct, err))
		r.recordOutcome(ctx, ct, catalog.SyncOutcomePartial, err.Error())
		return nil
	}

	// a full sync may no longer see the newest item, the cursor never moves back
	now := r.m.now()
	err = r.m.store.SetSyncState(ctx, &catalog.SyncState{
		ProfileID:   r.profile.ID,
		ContentType: ct,
		LastSyncAt:  &now,
		LastOutcome: catalog.SyncOutcomeSuccess,
		Cursor:      max(tally.storedCursor, tally.maxAdded),
		ItemCount:   count,
	})
	if err != nil {
		r.addError(fmt.Sprintf("%s sync state: %v", ct, err))
	}
	return nil
}

// abort records the outcome of the content type being synced and returns err.
func (r *run) abort(ctx context.Context, ct catalog.ContentType, err error) error {
	outcome := catalog.SyncOutcomeError
	if errors.Is(err, errCancelled) {
		outcome = catalog.SyncOutcomeCancelled
	}
	r.recordOutcome(context.WithoutCancel(ctx), ct, outcome, err.Error())
	return err
}

func (r *run) recordOutcome(ctx context.Context, ct catalog.ContentType, outcome catalog.SyncOutcome, msg string) {
	if err := r.m.store.RecordSyncOutcome(ctx, r.profile.ID, ct, outcome, msg); err != nil {
		slog.Error("Failed to record sync outcome",
			"profile", r.profile.ID,
			"content_type", ct,
			"outcome", outcome,
			"error", err)
	}
}

// retry runs a fetch with exponential backoff. Each attempt gets its own
// timeout. Rejected credentials and cancellation stop retrying at once.
func retry[T any](ctx context.Context, r *run, what string, fetch func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.m.initialBackoff
	b.MaxInterval = r.m.maxBackoff

	op := func() (T, error) {
		var zero T
		if r.cancelled.Load() {
			return zero, backoff.Permanent(errCancelled)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, r.m.pageTimeout)
		defer cancel()

		v, err := fetch(attemptCtx)
		if err != nil {
			if r.cancelled.Load() {
				return zero, backoff.Permanent(errCancelled)
			}
			if isFatal(err) || errors.Is(err, catalog.ErrInvalidQuery) {
				return zero, backoff.Permanent(err)
			}
			return zero, err
		}
		return v, nil
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.m.maxRetries),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Debug("Retrying fetch",
				"profile", r.profile.ID,
				"run_id", r.id,
				"what", what,
				"next_attempt_in", next,
				"error", err)
		}),
	)
}
