package model

import (
	"errors"
	"fmt"
	"iter"
)

// ErrDuplicateID is returned when an identifier is inserted twice into the same collection.
var ErrDuplicateID = errors.New("duplicate identifier")

// Idx is a position handle into a collection of T.
// Handles stay valid until the collection is reshaped by Retain.
type Idx[T any] int

// Identifier is implemented by every entity stored in a CollectionWithID.
type Identifier interface {
	ID() string
}

// CollectionWithID holds entities keyed by a unique string identifier.
// The zero value is an empty collection ready to use.
type CollectionWithID[T Identifier] struct {
	objects []T
	index   map[string]Idx[T]
}

// NewCollectionWithID builds a collection, failing on the first duplicate identifier.
func NewCollectionWithID[T Identifier](objects []T) (CollectionWithID[T], error) {
	var c CollectionWithID[T]
	if err := c.Extend(objects); err != nil {
		return CollectionWithID[T]{}, err
	}
	return c, nil
}

// Len returns the number of entities.
func (c *CollectionWithID[T]) Len() int { return len(c.objects) }

// ContainsID reports whether id is present.
func (c *CollectionWithID[T]) ContainsID(id string) bool {
	_, ok := c.index[id]
	return ok
}

// GetIdx returns the position of id.
func (c *CollectionWithID[T]) GetIdx(id string) (Idx[T], bool) {
	idx, ok := c.index[id]
	return idx, ok
}

// Get returns a copy of the entity with the given id.
func (c *CollectionWithID[T]) Get(id string) (T, bool) {
	idx, ok := c.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return c.objects[idx], true
}

// Index returns a copy of the entity at idx.
func (c *CollectionWithID[T]) Index(idx Idx[T]) T { return c.objects[idx] }

// IndexMut returns a pointer to the entity at idx. Callers must not change its identifier.
func (c *CollectionWithID[T]) IndexMut(idx Idx[T]) *T { return &c.objects[idx] }

// Values returns the entities in insertion order. The slice must not be modified.
func (c *CollectionWithID[T]) Values() []T { return c.objects }

// All iterates over positions and entities in insertion order.
func (c *CollectionWithID[T]) All() iter.Seq2[Idx[T], T] {
	return func(yield func(Idx[T], T) bool) {
		for i, obj := range c.objects {
			if !yield(Idx[T](i), obj) {
				return
			}
		}
	}
}

// Push appends obj and returns its position.
func (c *CollectionWithID[T]) Push(obj T) (Idx[T], error) {
	id := obj.ID()
	if _, ok := c.index[id]; ok {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	if c.index == nil {
		c.index = make(map[string]Idx[T])
	}
	idx := Idx[T](len(c.objects))
	c.objects = append(c.objects, obj)
	c.index[id] = idx
	return idx, nil
}

// Extend appends every object. Objects before a duplicate are kept.
func (c *CollectionWithID[T]) Extend(objects []T) error {
	for _, obj := range objects {
		if _, err := c.Push(obj); err != nil {
			return err
		}
	}
	return nil
}

// Retain keeps only the entities for which keep returns true, preserving order.
// All previously handed out positions are invalidated.
func (c *CollectionWithID[T]) Retain(keep func(*T) bool) {
	kept := c.objects[:0]
	for i := range c.objects {
		if keep(&c.objects[i]) {
			kept = append(kept, c.objects[i])
		}
	}
	clear(c.objects[len(kept):])
	c.objects = kept
	c.reindex()
}

// Take empties the collection and returns its entities.
func (c *CollectionWithID[T]) Take() []T {
	objects := c.objects
	c.objects = nil
	c.index = nil
	return objects
}

func (c *CollectionWithID[T]) reindex() {
	c.index = make(map[string]Idx[T], len(c.objects))
	for i, obj := range c.objects {
		c.index[obj.ID()] = Idx[T](i)
	}
}

// Collection holds entities without an identifier.
type Collection[T any] struct {
	objects []T
}

// NewCollection wraps objects.
func NewCollection[T any](objects []T) Collection[T] {
	return Collection[T]{objects: objects}
}

// Len returns the number of entities.
func (c *Collection[T]) Len() int { return len(c.objects) }

// Index returns a copy of the entity at idx.
func (c *Collection[T]) Index(idx Idx[T]) T { return c.objects[idx] }

// IndexMut returns a pointer to the entity at idx.
func (c *Collection[T]) IndexMut(idx Idx[T]) *T { return &c.objects[idx] }

// Values returns the entities in insertion order. The slice must not be modified.
func (c *Collection[T]) Values() []T { return c.objects }

// All iterates over positions and entities in insertion order.
func (c *Collection[T]) All() iter.Seq2[Idx[T], T] {
	return func(yield func(Idx[T], T) bool) {
		for i, obj := range c.objects {
			if !yield(Idx[T](i), obj) {
				return
			}
		}
	}
}

// Push appends obj.
func (c *Collection[T]) Push(obj T) Idx[T] {
	c.objects = append(c.objects, obj)
	return Idx[T](len(c.objects) - 1)
}

// Retain keeps only the entities for which keep returns true, preserving order.
func (c *Collection[T]) Retain(keep func(*T) bool) {
	kept := c.objects[:0]
	for i := range c.objects {
		if keep(&c.objects[i]) {
			kept = append(kept, c.objects[i])
		}
	}
	clear(c.objects[len(kept):])
	c.objects = kept
}
