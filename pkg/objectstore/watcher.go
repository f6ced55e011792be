package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/forecastkit/forecastkit/pkg/config"
	"github.com/forecastkit/forecastkit/pkg/engine"
	"github.com/forecastkit/forecastkit/pkg/telemetry"
)

// settleDelay is how long a file must stay quiet after the last write
// before it is treated as a finished upload.
const settleDelay = 500 * time.Millisecond

// Watcher turns file drops under an upload directory into upload events.
// Files are grouped by their first path component below the root:
// <root>/<dataset_group>/<file>.csv. The filename suffix selects the
// dataset type; anything that is not a CSV file is ignored.
type Watcher struct {
	store  *LocalStore
	log    *telemetry.Logger
	settle time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer

	// settled carries keys whose settle timer fired; processEvents is
	// the only goroutine that turns them into upload events, so the
	// events channel has a single sender and closes safely.
	settled chan string
	done    chan struct{}
}

// NewWatcher creates a watcher over the store's root directory.
func NewWatcher(store *LocalStore, logger *telemetry.Logger) *Watcher {
	if logger == nil {
		logger = telemetry.FromContext(context.Background())
	}
	return &Watcher{
		store:   store,
		log:     logger.NewComponentLogger("upload-watcher"),
		settle:  settleDelay,
		pending: make(map[string]*time.Timer),
		settled: make(chan string, 16),
		done:    make(chan struct{}),
	}
}

// ClassifyUpload derives the dataset group and dataset type from an upload
// key (a path relative to the watch root). The second return is false for
// files that are not dataset uploads.
func ClassifyUpload(key string) (datasetGroup, datasetType string, ok bool) {
	key = filepath.ToSlash(key)
	base := strings.ToLower(filepath.Base(key))
	if !strings.HasSuffix(base, ".csv") {
		return "", "", false
	}

	switch {
	case strings.HasSuffix(base, ".related.csv"):
		datasetType = config.RelatedTimeSeries
	case strings.HasSuffix(base, ".metadata.csv"):
		datasetType = config.ItemMetadata
	default:
		datasetType = config.TargetTimeSeries
	}

	if parts := strings.Split(key, "/"); len(parts) > 1 {
		datasetGroup = parts[0]
	} else {
		// Top-level drop: the file stem names the group.
		stem := strings.TrimSuffix(base, ".csv")
		stem = strings.TrimSuffix(stem, ".related")
		stem = strings.TrimSuffix(stem, ".metadata")
		datasetGroup = stem
	}
	if datasetGroup == "" {
		return "", "", false
	}
	return datasetGroup, datasetType, true
}

// Watch starts watching the upload directory and returns the event channel.
// The channel is closed when ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context) (<-chan engine.UploadEvent, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := w.addRecursive(fsw, w.store.Root()); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	events := make(chan engine.UploadEvent, 16)
	go w.processEvents(ctx, fsw, events)

	w.log.WithField("root", w.store.Root()).Info("Watching upload directory")
	return events, nil
}

// addRecursive watches dir and every subdirectory below it.
func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := fsw.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
		}
		return nil
	})
}

// processEvents debounces write activity per file and emits upload events
// once files settle. It is the sole sender on the events channel; the
// settle timers only post keys to w.settled.
func (w *Watcher) processEvents(ctx context.Context, fsw *fsnotify.Watcher, events chan<- engine.UploadEvent) {
	defer close(events)
	defer func() { _ = fsw.Close() }()
	defer w.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case key := <-w.settled:
			w.emit(ctx, key, events)

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// New dataset group directories join the watch set.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := w.addRecursive(fsw, event.Name); err != nil {
					w.log.WithError(err).WithField("path", event.Name).Warn("Failed to watch new directory")
				}
				continue
			}

			w.scheduleEmit(event.Name)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Error("Watcher error")
		}
	}
}

// shutdown stops every armed settle timer and releases timer callbacks
// already in flight. Runs before the events channel closes.
func (w *Watcher) shutdown() {
	close(w.done)
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, timer := range w.pending {
		timer.Stop()
		delete(w.pending, key)
	}
}

// scheduleEmit (re)arms the settle timer for one file.
func (w *Watcher) scheduleEmit(path string) {
	key, err := filepath.Rel(w.store.Root(), path)
	if err != nil {
		return
	}
	key = filepath.ToSlash(key)

	if _, _, ok := ClassifyUpload(key); !ok {
		w.log.WithField("path", path).Debug("Ignoring non-dataset file")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, exists := w.pending[key]; exists {
		timer.Stop()
	}
	w.pending[key] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, key)
		w.mu.Unlock()
		select {
		case w.settled <- key:
		case <-w.done:
		}
	})
}

// emit fingerprints the settled file and publishes the upload event.
func (w *Watcher) emit(ctx context.Context, key string, events chan<- engine.UploadEvent) {
	group, datasetType, ok := ClassifyUpload(key)
	if !ok {
		return
	}

	fp, err := w.store.Fingerprint(ctx, key)
	if err != nil {
		w.log.WithError(err).WithField("key", key).Error("Failed to fingerprint upload")
		return
	}

	upload := engine.UploadEvent{
		DatasetGroup: group,
		DatasetType:  datasetType,
		Location:     w.store.URI(key),
		Fingerprint:  fp,
		DetectedAt:   time.Now().UTC(),
	}

	w.log.WithDatasetGroup(group).
		WithField("dataset_type", datasetType).
		WithField("key", key).
		Info("Upload detected")

	select {
	case events <- upload:
	case <-ctx.Done():
	}
}
