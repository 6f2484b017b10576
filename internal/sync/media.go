package sync

import (
	"context"
	"log/slog"
	gosync "sync"

	"golang.org/x/sync/errgroup"
)

// resolveUploads decides which media files to transfer. Every ref of a
// record being written (Create ∪ Update) is queued unconditionally — its
// note is being rewritten anyway. Refs of Ignore records are queued only
// when absent from the remote listing, which recovers from a prior run
// that updated note text but died before uploading media. Deduplication is
// by key across the whole batch, first occurrence wins.
func resolveUploads(writing, ignored []RemoteRecord, existing []string) []MediaUpload {
	remote := make(map[string]bool, len(existing))
	for _, name := range existing {
		remote[name] = true
	}

	queued := make(map[string]bool)

	var uploads []MediaUpload

	add := func(ref MediaUpload) {
		if queued[ref.Key] {
			return
		}

		queued[ref.Key] = true
		uploads = append(uploads, ref)
	}

	for i := range writing {
		for _, ref := range writing[i].MediaRefs {
			add(MediaUpload{Key: ref.Key, Path: ref.Path})
		}
	}

	for i := range ignored {
		for _, ref := range ignored[i].MediaRefs {
			if remote[ref.Key] {
				continue
			}

			add(MediaUpload{Key: ref.Key, Path: ref.Path})
		}
	}

	return uploads
}

// uploadMedia transfers the queued files with bounded concurrency. A
// missing local file skips that single upload and is reported; a bridge
// error cancels the remaining workers and aborts the run.
func (e *Engine) uploadMedia(ctx context.Context, uploads []MediaUpload) (int, []CardFailure, error) {
	if len(uploads) == 0 {
		return 0, nil, nil
	}

	var (
		mu       gosync.Mutex
		uploaded int
		failures []CardFailure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.mediaWorkers)

	for i := range uploads {
		g.Go(func() error {
			up := uploads[i]

			data, err := e.readFile(up.Path)
			if err != nil {
				e.logger.Warn("media file unreadable, skipping upload",
					slog.String("key", up.Key),
					slog.String("path", up.Path),
					slog.String("error", err.Error()),
				)

				mu.Lock()
				failures = append(failures, CardFailure{
					Path:  up.Path,
					Stage: StageMedia,
					Err:   err.Error(),
				})
				mu.Unlock()

				return nil
			}

			if err := e.bridge.StoreMediaFile(gctx, up.Key, data); err != nil {
				return err // transport-tier: abort the batch
			}

			mu.Lock()
			uploaded++
			mu.Unlock()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return uploaded, failures, err
	}

	return uploaded, failures, nil
}
