package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/fsnotify/fsnotify"
)

// ReloadDelay is how long Watch waits after the last write before reloading.
var ReloadDelay = 500 * time.Millisecond

// Watch reloads the configuration file at path whenever it is written and
// passes the result to onChange. It blocks until ctx is done.
//
// The directory is watched rather than the file so that editors replacing
// the file are noticed.
func Watch(
	ctx context.Context,
	path string,
	onChange func(cfg *Config, err error),
) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	log := clog.FromContext(ctx)
	target := filepath.Clean(path)

	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}

			return nil

		case e, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(e.Name) != target {
				continue
			}

			if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
				continue
			}

			if debounce != nil {
				debounce.Stop()
			}

			debounce = time.AfterFunc(ReloadDelay, func() {
				onChange(Load(ctx, path))
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			log.Warnf("File watcher error: %v", err)
		}
	}
}
