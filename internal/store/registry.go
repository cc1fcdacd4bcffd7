package store

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/maruel/ksid"
	"github.com/samlab-dev/samstore/internal/jsonldb"
)

// Registry owns every table of one data directory: the document collections,
// the shared blob store, favorites and timeseries. Built once from a [Config]
// at process start and passed to whoever needs storage.
type Registry struct {
	cfg         *Config
	blobs       *jsonldb.BlobStore
	collections map[string]*Collection
	ownedBy     map[string][]string // owner collection -> owned collection names
	favorites   *Favorites
	timeseries  *Timeseries
}

// Open builds a registry from the config, creating the data directory layout
// as needed and loading every table into memory.
func Open(cfg *Config) (*Registry, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	r := &Registry{
		cfg:         cfg,
		blobs:       jsonldb.NewBlobStore(filepath.Join(cfg.DataDir, "blobs")),
		collections: make(map[string]*Collection, len(cfg.Collections)),
		ownedBy:     map[string][]string{},
	}
	if err := r.blobs.CleanupTmp(); err != nil {
		return nil, fmt.Errorf("failed to clean up blob temp files: %w", err)
	}
	for _, cc := range cfg.Collections {
		c, err := newCollection(cc.Name, r.tablePath(cc.Name), r.blobs)
		if err != nil {
			return nil, err
		}
		r.collections[cc.Name] = c
		if cc.Owner != "" {
			r.ownedBy[cc.Owner] = append(r.ownedBy[cc.Owner], cc.Name)
		}
	}
	var err error
	if r.favorites, err = newFavorites(r.tablePath("favorites")); err != nil {
		return nil, fmt.Errorf("failed to open favorites: %w", err)
	}
	if r.timeseries, err = newTimeseries(r.tablePath("timeseries")); err != nil {
		return nil, fmt.Errorf("failed to open timeseries: %w", err)
	}
	return r, nil
}

func (r *Registry) tablePath(name string) string {
	return filepath.Join(r.cfg.DataDir, name+".jsonl")
}

// Collection returns the named collection, or [ErrUnknownCollection].
func (r *Registry) Collection(name string) (*Collection, error) {
	c, ok := r.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	return c, nil
}

// Collections returns every collection in config order.
func (r *Registry) Collections() []*Collection {
	out := make([]*Collection, 0, len(r.cfg.Collections))
	for _, cc := range r.cfg.Collections {
		out = append(out, r.collections[cc.Name])
	}
	return out
}

// Watched returns the collections with change-feed notifications enabled.
func (r *Registry) Watched() []*Collection {
	var out []*Collection
	for _, cc := range r.cfg.Collections {
		if cc.Watched {
			out = append(out, r.collections[cc.Name])
		}
	}
	return out
}

// Favorites returns the bookmark table.
func (r *Registry) Favorites() *Favorites {
	return r.favorites
}

// Timeseries returns the sample table.
func (r *Registry) Timeseries() *Timeseries {
	return r.timeseries
}

// Blobs returns the shared blob store.
func (r *Registry) Blobs() *jsonldb.BlobStore {
	return r.blobs
}

// Delete removes a document and everything it owns, bottom-up: owned
// documents first (recursively, with their own bookmarks, blobs and samples),
// then the document's bookmark, its timeseries samples, its content blobs and
// finally the row itself. After a successful Delete no table, blob or sample
// references the id.
func (r *Registry) Delete(collection string, id ksid.ID) error {
	c, ok := r.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if !c.Contains(id) {
		return fmt.Errorf("%w: %s in %s", ErrNotFound, id, collection)
	}

	var errs []error
	for _, owned := range r.ownedBy[collection] {
		for child := range r.collections[owned].children(id) {
			if err := r.Delete(owned, child); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if err := r.favorites.Delete(collection, id); err != nil {
		errs = append(errs, fmt.Errorf("failed to delete favorite of %s: %w", id, err))
	}
	if _, err := r.timeseries.Cut(id, "", ""); err != nil {
		errs = append(errs, fmt.Errorf("failed to cut timeseries of %s: %w", id, err))
	}
	if err := c.delete(id); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
