package sweep

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/exportsync/errors"
	"github.com/teranos/exportsync/fetch"
	"github.com/teranos/exportsync/logger"
)

// DefaultDebounce is how long the drop folder must be quiet before a sweep.
const DefaultDebounce = 2 * time.Second

// Watch runs sweep once, then again whenever new artifacts land in dir and
// the folder has been quiet for debounce. Sweeps never overlap. It returns
// when ctx is done, or with the first error from sweep that matches
// errors.ErrAuthFailure or errors.ErrStoreUnavailable.
func Watch(ctx context.Context, dir string, debounce time.Duration, sweep func(context.Context) error, log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create fsnotify watcher")
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "failed to watch drop folder %s", dir)
	}
	log.Infow("Watching drop folder", logger.FieldPath, dir, "debounce", debounce)

	runSweep := func() error {
		err := sweep(ctx)
		switch {
		case err == nil, ctx.Err() != nil:
			return nil
		case errors.IsAny(err, errors.ErrAuthFailure, errors.ErrStoreUnavailable):
			return err
		default:
			log.Warnw("Sweep failed; waiting for the next change", logger.FieldError, err)
			return nil
		}
	}

	if err := runSweep(); err != nil {
		return err
	}

	// stopped timer; armed by relevant events
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isArtifactArrival(event) {
				continue
			}
			log.Debugw("Drop folder change", logger.FieldFile, filepath.Base(event.Name), "op", event.Op.String())
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnw("Drop folder watcher error", logger.FieldError, err)

		case <-timer.C:
			if err := runSweep(); err != nil {
				return err
			}
		}
	}
}

// isArtifactArrival matches a complete export being created, written or
// renamed into place. Removals and .part downloads are ignored.
func isArtifactArrival(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	return strings.EqualFold(filepath.Ext(event.Name), fetch.ArtifactExt)
}
