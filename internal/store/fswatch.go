package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// WatchFiles watches the table files for external edits and reconciles the
// in-memory caches against them. Reload diffs the file against the cache, so
// edits surface as regular change-feed events and our own writes are no-ops.
//
// Runs until ctx is cancelled. Reload failures are logged, never fatal.
func (r *Registry) WatchFiles(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	reloaders := map[string]func() error{}
	for _, c := range r.Collections() {
		reloaders[c.table.Path()] = c.table.Reload
	}
	reloaders[r.favorites.table.Path()] = r.favorites.table.Reload
	reloaders[r.timeseries.table.Path()] = r.timeseries.table.Reload
	// Watch the directory, not the files: atomic rewrites replace the inode.
	if err := w.Add(r.cfg.DataDir); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", r.cfg.DataDir, err)
	}

	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				reload, ok := reloaders[event.Name]
				if !ok {
					continue
				}
				if err := reload(); err != nil {
					slog.WarnContext(ctx, "Failed to reload table after external edit", "path", event.Name, "err", err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "File watcher error", "err", err)
			}
		}
	}()
	return nil
}

// Reload re-reads every table from disk, firing change events for the
// differences.
func (r *Registry) Reload() error {
	tables := make([]interface{ Reload() error }, 0, len(r.collections)+2)
	for _, c := range r.Collections() {
		tables = append(tables, c.table)
	}
	tables = append(tables, r.favorites.table, r.timeseries.table)
	for _, t := range tables {
		if err := t.Reload(); err != nil {
			return err
		}
	}
	return nil
}
