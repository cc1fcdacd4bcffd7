package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/maruel/ksid"
	"github.com/samlab-dev/samstore/internal/search"
)

// textIndex maintains a searchable text snapshot per document, fed by table
// observer callbacks.
//
// Matching is case-insensitive: both the indexed text and the query phrase
// are folded to lower case, and a phrase matches when it appears as a
// substring of the folded text. The indexed text covers the document name,
// tags, content filenames and every string reachable through the attributes.
type textIndex struct {
	mu    sync.Mutex
	byDoc map[ksid.ID]string
}

func newTextIndex() *textIndex {
	return &textIndex{byDoc: make(map[ksid.ID]string)}
}

// Match returns the ids of documents whose indexed text contains the phrase.
// The empty phrase matches nothing.
func (x *textIndex) Match(phrase string) search.IDSet {
	result := make(search.IDSet)
	needle := strings.ToLower(strings.TrimSpace(phrase))
	if needle == "" {
		return result
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for id, text := range x.byDoc {
		if strings.Contains(text, needle) {
			result[id] = struct{}{}
		}
	}
	return result
}

// OnAppend implements jsonldb.TableObserver.
func (x *textIndex) OnAppend(d *Document) {
	x.mu.Lock()
	x.byDoc[d.ID] = searchableText(d)
	x.mu.Unlock()
}

// OnUpdate implements jsonldb.TableObserver.
func (x *textIndex) OnUpdate(prev, curr *Document) {
	x.mu.Lock()
	x.byDoc[curr.ID] = searchableText(curr)
	x.mu.Unlock()
}

// OnDelete implements jsonldb.TableObserver.
func (x *textIndex) OnDelete(d *Document) {
	x.mu.Lock()
	delete(x.byDoc, d.ID)
	x.mu.Unlock()
}

// searchableText flattens a document into one lower-cased string, with parts
// separated by newlines so a phrase cannot span two unrelated fields.
func searchableText(d *Document) string {
	var parts []string
	if d.Name != "" {
		parts = append(parts, d.Name)
	}
	parts = append(parts, d.Tags...)
	for key, env := range d.Content {
		parts = append(parts, key)
		if env.Filename != "" {
			parts = append(parts, env.Filename)
		}
	}
	collectStrings(d.Attributes, &parts)
	sort.Strings(parts)
	return strings.ToLower(strings.Join(parts, "\n"))
}

// collectStrings gathers keys and printable scalar values from a sanitized
// attribute tree.
func collectStrings(v any, parts *[]string) {
	switch t := v.(type) {
	case map[string]any:
		for key, val := range t {
			*parts = append(*parts, key)
			collectStrings(val, parts)
		}
	case []any:
		for _, val := range t {
			collectStrings(val, parts)
		}
	case string:
		*parts = append(*parts, t)
	case bool, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		*parts = append(*parts, fmt.Sprint(t))
	}
}
