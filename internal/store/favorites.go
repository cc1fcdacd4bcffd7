package store

import (
	"time"

	"github.com/maruel/ksid"
	"github.com/samlab-dev/samstore/internal/jsonldb"
)

// Favorite bookmarks one document under a display name.
type Favorite struct {
	ID         ksid.ID   `json:"_id" jsonschema:"description=Bookmark identifier"`
	Collection string    `json:"collection" jsonschema:"description=Collection of the bookmarked document"`
	Doc        ksid.ID   `json:"doc" jsonschema:"description=Bookmarked document id"`
	Name       string    `json:"name" jsonschema:"description=Display name"`
	Created    time.Time `json:"created"`
}

// GetID returns the favorite's ID.
func (f *Favorite) GetID() ksid.ID {
	return f.ID
}

// Clone returns a copy.
func (f *Favorite) Clone() *Favorite {
	c := *f
	return &c
}

// favoriteKey identifies a bookmark target. One bookmark per target.
type favoriteKey struct {
	collection string
	doc        ksid.ID
}

// Favorites is the bookmark table. Bookmarks are removed with their document
// by [Registry.Delete].
type Favorites struct {
	table  *jsonldb.Table[*Favorite]
	byDoc  *jsonldb.UniqueIndex[favoriteKey, *Favorite]
	byColl *jsonldb.Index[string, *Favorite]
}

func newFavorites(path string) (*Favorites, error) {
	table, err := jsonldb.NewTable[*Favorite](path)
	if err != nil {
		return nil, err
	}
	f := &Favorites{table: table}
	f.byDoc = jsonldb.NewUniqueIndex(table, func(fav *Favorite) favoriteKey {
		return favoriteKey{collection: fav.Collection, doc: fav.Doc}
	})
	f.byColl = jsonldb.NewIndex(table, func(fav *Favorite) string { return fav.Collection })
	return f, nil
}

// Set bookmarks the document, replacing the name of an existing bookmark for
// the same document.
func (f *Favorites) Set(collection string, doc ksid.ID, name string) (*Favorite, error) {
	if existing := f.byDoc.Get(favoriteKey{collection: collection, doc: doc}); existing != nil {
		return f.table.Modify(existing.ID, func(fav *Favorite) error {
			fav.Name = name
			return nil
		})
	}
	fav := &Favorite{
		ID:         ksid.NewID(),
		Collection: collection,
		Doc:        doc,
		Name:       name,
		Created:    time.Now().UTC(),
	}
	if err := f.table.Append(fav); err != nil {
		return nil, err
	}
	return fav.Clone(), nil
}

// Get returns the bookmark for a document, or nil.
func (f *Favorites) Get(collection string, doc ksid.ID) *Favorite {
	return f.byDoc.Get(favoriteKey{collection: collection, doc: doc})
}

// Delete removes the bookmark for a document. Removing an absent bookmark is
// a no-op.
func (f *Favorites) Delete(collection string, doc ksid.ID) error {
	fav := f.byDoc.Get(favoriteKey{collection: collection, doc: doc})
	if fav == nil {
		return nil
	}
	return f.table.Delete(fav.ID)
}

// List returns every bookmark in a collection.
func (f *Favorites) List(collection string) []*Favorite {
	var favs []*Favorite
	for fav := range f.byColl.Iter(collection) {
		favs = append(favs, fav)
	}
	return favs
}

// Watch subscribes to bookmark mutations starting now.
func (f *Favorites) Watch(buffer int) *jsonldb.Stream[*Favorite] {
	return f.table.Watch(buffer)
}
