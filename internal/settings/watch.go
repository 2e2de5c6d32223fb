package settings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	applog "spendbook/internal/log"
)

// Watch reloads the settings file whenever it changes on disk and passes the
// new value to onChange. Bursts of events within debounce collapse into one
// reload. Files that fail to load are logged and skipped. Watch blocks until
// ctx is done.
func (fs *FileStore) Watch(ctx context.Context, debounce time.Duration, onChange func(Settings)) error {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	// watch the directory so atomic renames are seen
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	fs.log.Info("Watching settings file", applog.FieldPath, fs.path)

	name := filepath.Base(fs.path)
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(debounce)
			pending = true

		case <-timer.C:
			pending = false
			s, err := fs.Load()
			if err != nil {
				fs.log.Warn("Ignoring unreadable settings file", applog.FieldPath, fs.path, applog.FieldError, err)
				continue
			}
			onChange(s)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fs.log.Warn("Settings watcher error", applog.FieldError, err)
		}
	}
}
