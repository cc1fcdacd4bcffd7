package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/maruel/ksid"
	"github.com/samlab-dev/samstore/internal/content"
	"github.com/samlab-dev/samstore/internal/jsonldb"
	"github.com/samlab-dev/samstore/internal/search"
)

// Collection is one named set of documents backed by a JSONL table, with the
// secondary indexes the search evaluator and the registry's cascading delete
// run against.
//
// All mutations go through the table's pessimistic locking; the indexes are
// observer-maintained so they never lag the table.
type Collection struct {
	name  string
	table *jsonldb.Table[*Document]
	blobs *jsonldb.BlobStore

	byOwner      *jsonldb.Index[ksid.ID, *Document]
	byTag        *jsonldb.MultiIndex[string, *Document]
	byContentKey *jsonldb.MultiIndex[string, *Document]
	byAttrKey    *jsonldb.MultiIndex[string, *Document]
	text         *textIndex
}

func newCollection(name, path string, blobs *jsonldb.BlobStore) (*Collection, error) {
	table, err := jsonldb.NewTable[*Document](path)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %s: %w", name, err)
	}
	c := &Collection{
		name:  name,
		table: table,
		blobs: blobs,
		text:  newTextIndex(),
	}
	c.byOwner = jsonldb.NewIndex(table, func(d *Document) ksid.ID { return d.Owner })
	c.byTag = jsonldb.NewMultiIndex(table, func(d *Document) []string { return d.Tags })
	c.byContentKey = jsonldb.NewMultiIndex(table, contentKeys)
	c.byAttrKey = jsonldb.NewMultiIndex(table, attributeKeys)
	table.AddObserver(c.text)
	return c, nil
}

func contentKeys(d *Document) []string {
	keys := make([]string, 0, len(d.Content))
	for key := range d.Content {
		keys = append(keys, key)
	}
	return keys
}

func attributeKeys(d *Document) []string {
	keys := make([]string, 0, len(d.Attributes))
	for key := range d.Attributes {
		keys = append(keys, key)
	}
	return keys
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// Len returns the number of documents.
func (c *Collection) Len() int {
	return c.table.Len()
}

// Create stores a new document and returns it. Attributes are sanitized,
// tags deduplicated and content payloads drained into the blob store before
// the row is persisted.
func (c *Collection) Create(name string, attributes map[string]any, contents map[string]content.Envelope, tags []string) (*Document, error) {
	return c.CreateOwned(name, attributes, contents, tags, 0)
}

// CreateOwned stores a new document owned by another document. An owned
// document is deleted when its owner is, see [Registry.Delete].
func (c *Collection) CreateOwned(name string, attributes map[string]any, contents map[string]content.Envelope, tags []string, owner ksid.ID) (*Document, error) {
	doc := &Document{
		ID:         ksid.NewID(),
		Name:       name,
		Attributes: sanitized(attributes),
		Content:    map[string]content.Envelope{},
		Tags:       normalizeTags(tags),
		Owner:      owner,
		Created:    time.Now().UTC(),
	}
	for key, env := range contents {
		stored, err := c.storeEnvelope(key, env)
		if err != nil {
			c.removeBlobs(doc.Content)
			return nil, err
		}
		doc.Content[key] = stored
	}
	if err := c.table.Append(doc); err != nil {
		c.removeBlobs(doc.Content)
		return nil, err
	}
	return doc.Clone(), nil
}

// storeEnvelope drains a pending payload into the blob store and returns the
// at-rest envelope.
func (c *Collection) storeEnvelope(key string, env content.Envelope) (content.Envelope, error) {
	if env.Payload != nil {
		blob, err := c.blobs.Put(env.Payload)
		if closer, ok := env.Payload.(io.Closer); ok {
			_ = closer.Close()
		}
		if err != nil {
			return env, fmt.Errorf("failed to store content %s: %w", key, err)
		}
		env.Data = blob
		env.Payload = nil
	}
	if env.Data.IsZero() {
		return env, fmt.Errorf("content %s: %w", key, content.ErrNoData)
	}
	return env, nil
}

// removeBlobs best-effort deletes the blobs of envelopes that never made it
// into a persisted row.
func (c *Collection) removeBlobs(contents map[string]content.Envelope) {
	for _, env := range contents {
		if !env.Data.IsZero() {
			_ = c.blobs.Remove(env.Data.Ref)
		}
	}
}

func sanitized(attributes map[string]any) map[string]any {
	if attributes == nil {
		return map[string]any{}
	}
	return content.SanitizeAttributes(attributes).(map[string]any)
}

// Get returns the document with the given id, or [ErrNotFound].
func (c *Collection) Get(id ksid.ID) (*Document, error) {
	doc := c.table.Get(id)
	if doc == nil {
		return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, id, c.name)
	}
	c.bind(doc)
	return doc, nil
}

// bind re-attaches the blob store to every envelope of a document loaded from
// the table.
func (c *Collection) bind(doc *Document) {
	for key, env := range doc.Content {
		c.blobs.Bind(&env.Data)
		doc.Content[key] = env
	}
}

// errNoChange signals that an updater left the document as it was.
var errNoChange = errors.New("document unchanged")

// Update atomically applies fn to a copy of the document and persists the
// result. The id and creation timestamp are immutable; changing either fails
// with [ErrInvariantViolation]. Tags are re-deduplicated and attributes
// re-sanitized after fn runs.
//
// The row is rewritten and the modification timestamp refreshed only when fn
// actually changed something: an updater that leaves the document as it was
// returns the stored document untouched, with no observer event and no
// change-feed notification.
func (c *Collection) Update(id ksid.ID, fn func(d *Document) error) (*Document, error) {
	doc, err := c.table.Modify(id, func(d *Document) error {
		orig := d.Clone()
		if err := fn(d); err != nil {
			return err
		}
		if d.ID != id || !d.Created.Equal(orig.Created) {
			return ErrInvariantViolation
		}
		d.Attributes = sanitized(d.Attributes)
		d.Tags = normalizeTags(d.Tags)
		if sameBody(orig, d) {
			return errNoChange
		}
		d.Modified = time.Now().UTC()
		return nil
	})
	if err != nil {
		if errors.Is(err, errNoChange) {
			return c.Get(id)
		}
		if errors.Is(err, jsonldb.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, id, c.name)
		}
		return nil, err
	}
	c.bind(doc)
	return doc, nil
}

// sameBody reports whether two documents carry the same stored state, the
// modification timestamp aside.
func sameBody(a, b *Document) bool {
	ac, bc := a.Clone(), b.Clone()
	ac.Modified, bc.Modified = time.Time{}, time.Time{}
	aj, err := json.Marshal(ac)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(bc)
	if err != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}

// SetName renames the document.
func (c *Collection) SetName(id ksid.ID, name string) (*Document, error) {
	return c.Update(id, func(d *Document) error {
		d.Name = name
		return nil
	})
}

// SetTags replaces the document's tag set.
func (c *Collection) SetTags(id ksid.ID, tags []string) (*Document, error) {
	return c.Update(id, func(d *Document) error {
		d.Tags = slices.Clone(tags)
		return nil
	})
}

// SetAttributes merges the given keys into the document's attributes,
// overwriting existing values.
func (c *Collection) SetAttributes(id ksid.ID, attributes map[string]any) (*Document, error) {
	return c.Update(id, func(d *Document) error {
		for key, value := range sanitized(attributes) {
			d.Attributes[key] = value
		}
		return nil
	})
}

// DeleteAttribute removes one attribute key. Removing an absent key is a
// no-op.
func (c *Collection) DeleteAttribute(id ksid.ID, key string) (*Document, error) {
	return c.Update(id, func(d *Document) error {
		delete(d.Attributes, key)
		return nil
	})
}

// SetContent stores the envelope's payload in the blob store and attaches it
// to the document under the given key, replacing and deleting any previous
// content for that key.
//
// Blob I/O happens outside the table lock: the new blob is written first, the
// document row is swapped, then the superseded blob is removed. A failure
// after the blob write cleans up the new blob, so the store never leaks a
// handle the document does not reference.
func (c *Collection) SetContent(id ksid.ID, key string, env content.Envelope) (*Document, error) {
	env, err := c.storeEnvelope(key, env)
	if err != nil {
		return nil, err
	}

	var prev jsonldb.Blob
	doc, err := c.Update(id, func(d *Document) error {
		if d.Content == nil {
			d.Content = map[string]content.Envelope{}
		}
		prev = d.Content[key].Data
		d.Content[key] = env
		return nil
	})
	if err != nil {
		_ = c.blobs.Remove(env.Data.Ref)
		return nil, err
	}
	if !prev.IsZero() {
		if err := c.blobs.Remove(prev.Ref); err != nil && !errors.Is(err, jsonldb.ErrBlobNotFound) {
			return doc, fmt.Errorf("failed to remove superseded content %s: %w", key, err)
		}
	}
	return doc, nil
}

// DeleteContent detaches and deletes the content stored under key. Deleting
// an absent key is a no-op.
func (c *Collection) DeleteContent(id ksid.ID, key string) (*Document, error) {
	var prev jsonldb.Blob
	doc, err := c.Update(id, func(d *Document) error {
		prev = d.Content[key].Data
		delete(d.Content, key)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !prev.IsZero() {
		if err := c.blobs.Remove(prev.Ref); err != nil && !errors.Is(err, jsonldb.ErrBlobNotFound) {
			return doc, fmt.Errorf("failed to remove content %s: %w", key, err)
		}
	}
	return doc, nil
}

// delete removes the document and every blob it owns. Callers that need the
// ownership cascade go through [Registry.Delete] instead.
func (c *Collection) delete(id ksid.ID) error {
	doc, err := c.Get(id)
	if err != nil {
		return err
	}
	// Content blobs go first, matching the bottom-up cascade: a crash here
	// leaves a document with dangling handles rather than orphaned blobs with
	// no owner to find them by.
	var errs []error
	for key, env := range doc.Content {
		if env.Data.IsZero() {
			continue
		}
		if err := c.blobs.Remove(env.Data.Ref); err != nil && !errors.Is(err, jsonldb.ErrBlobNotFound) {
			errs = append(errs, fmt.Errorf("failed to remove content %s: %w", key, err))
		}
	}
	if err := c.table.Delete(id); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// children returns the ids of documents owned by the given document.
func (c *Collection) children(owner ksid.ID) search.IDSet {
	return search.IDSet(c.byOwner.IDs(owner))
}

// Find returns the documents matching the boolean query, in id order. The
// empty query matches the whole collection.
func (c *Collection) Find(query string) ([]*Document, error) {
	var ids search.IDSet
	if query == "" {
		ids = c.IDs()
	} else {
		var err error
		ids, err = search.Search(c, query)
		if err != nil {
			return nil, err
		}
	}
	docs := make([]*Document, 0, len(ids))
	for id := range ids {
		doc := c.table.Get(id)
		if doc == nil {
			continue // Deleted between evaluation and lookup.
		}
		c.bind(doc)
		docs = append(docs, doc)
	}
	slices.SortFunc(docs, func(a, b *Document) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return docs, nil
}

// Tagged returns the documents carrying the given tag.
func (c *Collection) Tagged(tag string) search.IDSet {
	return search.IDSet(c.byTag.IDs(tag))
}

// Watch subscribes to the collection's mutations starting now. See
// [jsonldb.Table.Watch] for buffer and loss semantics.
func (c *Collection) Watch(buffer int) *jsonldb.Stream[*Document] {
	return c.table.Watch(buffer)
}

// IDs implements [search.Collection].
func (c *Collection) IDs() search.IDSet {
	ids := make(search.IDSet, c.table.Len())
	for doc := range c.table.All() {
		ids[doc.ID] = struct{}{}
	}
	return ids
}

// MatchText implements [search.Collection].
func (c *Collection) MatchText(phrase string) search.IDSet {
	return c.text.Match(phrase)
}

// WithContentKey implements [search.Collection].
func (c *Collection) WithContentKey(key string) search.IDSet {
	return search.IDSet(c.byContentKey.IDs(key))
}

// WithAttributeKey implements [search.Collection].
func (c *Collection) WithAttributeKey(key string) search.IDSet {
	return search.IDSet(c.byAttrKey.IDs(key))
}

// Contains implements [search.Collection].
func (c *Collection) Contains(id ksid.ID) bool {
	return c.table.Get(id) != nil
}
