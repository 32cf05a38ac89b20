package config

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch re-loads the settings file whenever it changes and delivers the new
// value to onChange. Editors replace files via rename, so the parent
// directory is watched rather than the file itself. Invalid intermediate
// states are logged and skipped; the previous settings stay in force.
//
// Watch blocks until stop is closed.
func Watch(path string, onChange func(Settings), stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	// Debounce bursts of write events from editors.
	var pending *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(200*time.Millisecond, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			s, err := Load(path)
			if err != nil {
				slog.Warn("settings reload skipped", "path", path, "error", err)
				continue
			}
			onChange(s)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("settings watcher error", "error", err)

		case <-stop:
			return nil
		}
	}
}
