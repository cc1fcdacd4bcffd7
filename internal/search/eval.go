package search

import (
	"github.com/maruel/ksid"
)

// IDSet is a set of document identifiers.
type IDSet map[ksid.ID]struct{}

// Union adds all members of other to s and returns s.
func (s IDSet) Union(other IDSet) IDSet {
	for id := range other {
		s[id] = struct{}{}
	}
	return s
}

// Intersect removes members of s absent from other and returns s.
func (s IDSet) Intersect(other IDSet) IDSet {
	for id := range s {
		if _, ok := other[id]; !ok {
			delete(s, id)
		}
	}
	return s
}

// Subtract removes members of other from s and returns s.
func (s IDSet) Subtract(other IDSet) IDSet {
	for id := range other {
		delete(s, id)
	}
	return s
}

// Equal reports whether both sets have exactly the same members.
func (s IDSet) Equal(other IDSet) bool {
	if len(s) != len(other) {
		return false
	}
	for id := range s {
		if _, ok := other[id]; !ok {
			return false
		}
	}
	return true
}

// Collection is the index surface a search runs against. Implemented by the
// document store's collections.
type Collection interface {
	// IDs returns every document id in the collection.
	IDs() IDSet
	// MatchText returns ids whose indexed text matches the phrase. The
	// match's case policy belongs to the index implementation.
	MatchText(phrase string) IDSet
	// WithContentKey returns ids of documents having a content entry under
	// the exact key (existence, not value match).
	WithContentKey(key string) IDSet
	// WithAttributeKey returns ids of documents having an attribute under
	// the exact key (existence, not value match).
	WithAttributeKey(key string) IDSet
	// Contains reports whether the id exists in the collection.
	Contains(id ksid.ID) bool
}

// Evaluate interprets a parsed expression against one collection, producing
// the set of matching document ids.
func Evaluate(c Collection, expr Expr) IDSet {
	switch e := expr.(type) {
	case Term:
		// A term deliberately expands to id-or-key-or-text so one query box
		// covers searching by id, field presence and free text. Key and id
		// matching are exact; text matching follows the index's case policy.
		result := c.MatchText(string(e))
		result.Union(c.WithContentKey(string(e)))
		result.Union(c.WithAttributeKey(string(e)))
		if id, err := ksid.Parse(string(e)); err == nil && c.Contains(id) {
			result[id] = struct{}{}
		}
		return result
	case And:
		if len(e) == 0 {
			// Intersection identity: no operands restrict nothing.
			return c.IDs()
		}
		result := Evaluate(c, e[0])
		for _, operand := range e[1:] {
			if len(result) == 0 {
				return result
			}
			result.Intersect(Evaluate(c, operand))
		}
		return result
	case Or:
		// Union identity: no operands match nothing.
		result := make(IDSet)
		for _, operand := range e {
			result.Union(Evaluate(c, operand))
		}
		return result
	case Not:
		// Complement is collection-scoped, not global.
		return c.IDs().Subtract(Evaluate(c, e.X))
	default:
		// Expr is closed; no other node kinds exist.
		panic("search: unknown expression node")
	}
}

// Search parses the query and evaluates it against the collection.
func Search(c Collection, query string) (IDSet, error) {
	expr, err := Parse(query)
	if err != nil {
		return nil, err
	}
	return Evaluate(c, expr), nil
}
