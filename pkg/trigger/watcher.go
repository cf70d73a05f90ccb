package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dukex/taskpipe/pkg/models"
	"github.com/fsnotify/fsnotify"
)

// EmitFunc receives events produced by a driver.
type EmitFunc func(ctx context.Context, ev models.TriggerEvent)

// FileWatcher turns filesystem notifications into file_change events.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	emit    EmitFunc
	logger  *slog.Logger
}

func NewFileWatcher(logger *slog.Logger, emit EmitFunc) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &FileWatcher{
		watcher: watcher,
		emit:    emit,
		logger:  logger.With("module", "file_watcher"),
	}, nil
}

// Add watches path, a file or a directory. Directories are not watched recursively.
func (w *FileWatcher) Add(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	err = w.watcher.Add(absPath)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", absPath, err)
	}

	w.logger.Info("Watching path", "path", absPath)

	return nil
}

// Run forwards notifications until ctx is done, then closes the watcher.
func (w *FileWatcher) Run(ctx context.Context) error {
	defer func() {
		_ = w.watcher.Close()
	}()

	source := "fsnotify"

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			w.logger.DebugContext(ctx, "File changed", "path", event.Name, "op", event.Op.String())

			w.emit(ctx, models.TriggerEvent{
				EventName: models.EventNameFileChange,
				Payload: map[string]any{
					"path": event.Name,
					"op":   event.Op.String(),
				},
				Source: &source,
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}

			w.logger.ErrorContext(ctx, "File watcher error", "error", err)
		}
	}
}
