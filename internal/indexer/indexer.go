// Package indexer publishes normalized listings into the listing store,
// replacing previously indexed copies of the same listing.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/IshaanNene/ListingScout/internal/storage"
	"github.com/IshaanNene/ListingScout/internal/types"
)

// Writer runs exists -> delete -> bulk insert against a store.
//
// The sequence is not atomic: between the delete and the insert a reader
// may briefly miss a listing. Writing the same batch again converges to one
// live document per dedup key.
type Writer struct {
	store   storage.Store
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Writer. timeout bounds each store round trip; zero means
// only the caller's context applies.
func New(store storage.Store, timeout time.Duration, logger *slog.Logger) *Writer {
	return &Writer{
		store:   store,
		timeout: timeout,
		logger:  logger.With("component", "index_writer"),
		now:     time.Now,
	}
}

// Write replaces stored copies of listings and inserts the batch.
//
// A failed existence check or delete returns a StoreUnavailableError and
// inserts nothing. Documents the store refused are reported through a
// PartialWriteError alongside the report.
func (w *Writer) Write(ctx context.Context, listings []*types.Listing) (*types.WriteReport, error) {
	report := &types.WriteReport{Received: len(listings)}
	if len(listings) == 0 {
		return report, nil
	}

	batch, rejected := w.prepare(listings, report)

	links, images := collectKeys(batch)
	var ids []string
	for _, lookup := range []struct {
		field  string
		values []string
	}{
		{storage.FieldLink, links},
		{storage.FieldImageSrc, images},
	} {
		if len(lookup.values) == 0 {
			continue
		}
		found, err := w.exists(ctx, lookup.field, lookup.values)
		if err != nil {
			return report, w.unavailable("exists", err)
		}
		ids = append(ids, found...)
	}
	ids = uniqueStrings(ids)
	report.Matched = len(ids)

	if len(ids) > 0 {
		deleted, err := w.delete(ctx, ids)
		if err != nil {
			return report, w.unavailable("delete", err)
		}
		report.Deleted = deleted
	}

	var failedKeys []string
	failedKeys = append(failedKeys, rejected...)

	if len(batch) > 0 {
		res, err := w.insert(ctx, batch)
		if err != nil {
			return report, w.unavailable("insert", err)
		}
		report.Inserted = res.Inserted
		for _, idx := range res.Failed {
			failedKeys = append(failedKeys, keyOrTitle(batch[idx]))
		}
	}

	report.Failed = len(failedKeys)
	report.FailedKeys = failedKeys

	w.logger.Info("batch written",
		"received", report.Received,
		"duplicates", report.Duplicates,
		"matched", report.Matched,
		"deleted", report.Deleted,
		"inserted", report.Inserted,
		"failed", report.Failed,
	)

	if report.Failed > 0 {
		var cause error
		if len(rejected) > 0 {
			cause = types.ErrSoldOutNotIndexable
		}
		return report, &types.PartialWriteError{
			Inserted:   report.Inserted,
			Failed:     report.Failed,
			FailedKeys: failedKeys,
			Err:        cause,
		}
	}
	return report, nil
}

// prepare drops in-batch duplicates (first wins), rejects sold-out
// listings and stamps insertion ordinals.
func (w *Writer) prepare(listings []*types.Listing, report *types.WriteReport) ([]*types.Listing, []string) {
	seen := make(map[string]struct{}, len(listings))
	batch := make([]*types.Listing, 0, len(listings))
	var rejected []string

	base := w.now().UnixNano()
	for _, l := range listings {
		if l == nil {
			continue
		}
		if l.Status == types.StatusSoldOut {
			w.logger.Warn("sold-out listing reached the writer", "key", keyOrTitle(l))
			rejected = append(rejected, keyOrTitle(l))
			continue
		}
		if key := l.Key(); key != "" {
			if _, dup := seen[key]; dup {
				report.Duplicates++
				continue
			}
			seen[key] = struct{}{}
		}
		doc := *l
		doc.ID = ""
		doc.Raw = nil
		doc.Seq = base + int64(len(batch))
		if doc.CrawledAt.IsZero() {
			doc.CrawledAt = w.now()
		}
		batch = append(batch, &doc)
	}
	return batch, rejected
}

func (w *Writer) exists(ctx context.Context, field string, values []string) ([]string, error) {
	ctx, cancel := w.roundTrip(ctx)
	defer cancel()
	ids, err := w.store.Exists(ctx, field, values)
	return ids, timeoutAware(ctx, err)
}

func (w *Writer) delete(ctx context.Context, ids []string) (int, error) {
	ctx, cancel := w.roundTrip(ctx)
	defer cancel()
	n, err := w.store.BulkDelete(ctx, ids)
	return n, timeoutAware(ctx, err)
}

func (w *Writer) insert(ctx context.Context, batch []*types.Listing) (*storage.InsertResult, error) {
	ctx, cancel := w.roundTrip(ctx)
	defer cancel()
	res, err := w.store.BulkInsert(ctx, batch)
	return res, timeoutAware(ctx, err)
}

func (w *Writer) roundTrip(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.timeout)
}

func (w *Writer) unavailable(op string, err error) error {
	w.logger.Error("store round trip failed", "op", op, "error", err)
	return &types.StoreUnavailableError{Backend: w.store.Name(), Op: op, Err: err}
}

// timeoutAware tags deadline failures with ErrStoreTimeout.
func timeoutAware(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", types.ErrStoreTimeout, err)
	}
	return err
}

func collectKeys(batch []*types.Listing) (links, images []string) {
	for _, l := range batch {
		if l.HasLink() {
			links = append(links, l.Link)
		}
		if l.HasImage() {
			images = append(images, l.ImageSrc)
		}
	}
	return uniqueStrings(links), uniqueStrings(images)
}

func uniqueStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := set[s]; ok {
			continue
		}
		set[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func keyOrTitle(l *types.Listing) string {
	if key := l.Key(); key != "" {
		return key
	}
	return l.Title
}
