package vault

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher error backoff constants. Sustained watcher errors (e.g. kernel
// buffer overflow) back off exponentially instead of spinning.
const (
	watchErrInitBackoff = 1 * time.Second
	watchErrMaxBackoff  = 30 * time.Second
	watchErrBackoffMult = 2
)

// notifier abstracts fsnotify so tests can script filesystem events.
type notifier interface {
	Events() <-chan fsnotify.Event
	Errors() <-chan error
	Add(path string) error
	Close() error
}

// fsnotifyAdapter wraps *fsnotify.Watcher, whose Events/Errors are struct
// fields, behind the notifier interface.
type fsnotifyAdapter struct {
	w *fsnotify.Watcher
}

func (a *fsnotifyAdapter) Events() <-chan fsnotify.Event { return a.w.Events }
func (a *fsnotifyAdapter) Errors() <-chan error          { return a.w.Errors }
func (a *fsnotifyAdapter) Add(path string) error         { return a.w.Add(path) }
func (a *fsnotifyAdapter) Close() error                  { return a.w.Close() }

// Watcher reruns a sync function when the vault changes. Events are
// coalesced through a debounce window; a poll ticker forces a full run as
// a safety net for events fsnotify may have missed.
type Watcher struct {
	logger *slog.Logger

	// newNotifier is injectable for tests. Defaults to fsnotify.
	newNotifier func() (notifier, error)
}

// NewWatcher creates a Watcher backed by fsnotify.
func NewWatcher(logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		logger: logger,
		newNotifier: func() (notifier, error) {
			w, err := fsnotify.NewWatcher()
			if err != nil {
				return nil, err
			}

			return &fsnotifyAdapter{w: w}, nil
		},
	}
}

// Watch blocks until ctx is canceled, invoking runFn after each debounced
// burst of markdown changes under root and on every poll tick. runFn
// executes inline in the watch loop, so runs never overlap. A failed run
// is logged and watching continues; the next change or tick retries.
func (w *Watcher) Watch(
	ctx context.Context, root string, debounce, poll time.Duration,
	runFn func(context.Context) error,
) error {
	n, err := w.newNotifier()
	if err != nil {
		return fmt.Errorf("vault: creating watcher: %w", err)
	}
	defer n.Close()

	if err := addRecursive(n, root); err != nil {
		return err
	}

	w.logger.Info("watching vault",
		slog.String("root", root),
		slog.Duration("debounce", debounce),
		slog.Duration("poll", poll),
	)

	pollTicker := time.NewTicker(poll)
	defer pollTicker.Stop()

	// Debounce timer starts stopped; the first relevant event arms it.
	debounceTimer := time.NewTimer(debounce)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	defer debounceTimer.Stop()

	errBackoff := watchErrInitBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-n.Events():
			if !ok {
				return nil
			}

			if w.handleEvent(n, ev) {
				debounceTimer.Reset(debounce)
			}

			errBackoff = watchErrInitBackoff

		case <-debounceTimer.C:
			w.runOnce(ctx, runFn, "change")

		case <-pollTicker.C:
			w.runOnce(ctx, runFn, "poll")

		case watchErr, ok := <-n.Errors():
			if !ok {
				return nil
			}

			w.logger.Warn("filesystem watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			if sleepErr := sleepCtx(ctx, errBackoff); sleepErr != nil {
				return nil
			}

			errBackoff *= watchErrBackoffMult
			if errBackoff > watchErrMaxBackoff {
				errBackoff = watchErrMaxBackoff
			}
		}
	}
}

// handleEvent filters one fsnotify event and reports whether it should arm
// the debounce timer. Created directories are added to the watch set.
func (w *Watcher) handleEvent(n notifier, ev fsnotify.Event) bool {
	// Chmod-only events are noise.
	if ev.Op == fsnotify.Chmod {
		return false
	}

	if ev.Has(fsnotify.Create) {
		// A created path with no extension may be a new directory; watch it
		// so files created inside are seen. Add on a file is harmless.
		if filepath.Ext(ev.Name) == "" {
			if err := n.Add(ev.Name); err != nil {
				w.logger.Debug("adding watch for created path",
					slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
		}
	}

	if !strings.EqualFold(filepath.Ext(ev.Name), ".md") {
		return false
	}

	w.logger.Debug("vault change",
		slog.String("path", ev.Name),
		slog.String("op", ev.Op.String()),
	)

	return true
}

// runOnce invokes runFn, logging failures without stopping the watch.
func (w *Watcher) runOnce(ctx context.Context, runFn func(context.Context) error, trigger string) {
	w.logger.Debug("watch run triggered", slog.String("trigger", trigger))

	if err := runFn(ctx); err != nil {
		w.logger.Warn("sync run failed, continuing to watch",
			slog.String("trigger", trigger),
			slog.String("error", err.Error()),
		)
	}
}

// addRecursive registers root and every non-hidden subdirectory.
func addRecursive(n notifier, root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		return n.Add(path)
	})
	if err != nil {
		return fmt.Errorf("vault: registering watches under %s: %w", root, err)
	}

	return nil
}

// sleepCtx waits for d or until ctx is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
