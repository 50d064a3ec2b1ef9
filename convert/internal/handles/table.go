// Package handles maps native object handles to Go values.
package handles

import (
	"errors"
	"reflect"
	"sync"
)

var ErrClosed = errors.New("handle table closed")

// Handle is a native object reference. Zero is the null handle.
type Handle uint64

// Table is an interning handle table: the same Go value always maps to the
// same live handle, and each Put takes a reference that Release gives back.
type Table struct {
	entries  []entry
	freeList []Handle
	index    map[any]Handle
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value any
	key   any
	refs  uint32
	valid bool
}

// identity is the interning key of values that cannot be map keys.
type identity struct {
	typ reflect.Type
	ptr uintptr
	len int
}

// New creates an empty table.
func New() *Table {
	return &Table{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
		index:    make(map[any]Handle),
	}
}

func keyOf(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Comparable() {
		return v
	}
	switch rv.Kind() {
	case reflect.Slice:
		return identity{typ: rv.Type(), ptr: rv.Pointer(), len: rv.Len()}
	case reflect.Map, reflect.Func:
		return identity{typ: rv.Type(), ptr: rv.Pointer()}
	}
	return nil
}

// Put returns the handle of value, allocating one on first sight.
// Values that can be neither compared nor addressed get a fresh handle
// every time.
func (t *Table) Put(value any) (Handle, error) {
	if value == nil {
		return 0, nil
	}

	key := keyOf(value)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, ErrClosed
	}

	if key != nil {
		if h, ok := t.index[key]; ok {
			t.entries[h-1].refs++
			return h, nil
		}
	}

	e := entry{value: value, key: key, refs: 1, valid: true}

	var h Handle
	if len(t.freeList) > 0 {
		h = t.freeList[len(t.freeList)-1]
		t.freeList = t.freeList[:len(t.freeList)-1]
		t.entries[h-1] = e
	} else {
		t.entries = append(t.entries, e)
		h = Handle(len(t.entries))
	}
	if key != nil {
		t.index[key] = h
	}
	return h, nil
}

// Get returns the value behind handle.
func (t *Table) Get(handle Handle) (any, bool) {
	if handle == 0 {
		return nil, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	idx := handle - 1
	if idx >= Handle(len(t.entries)) {
		return nil, false
	}
	e := t.entries[idx]
	if !e.valid {
		return nil, false
	}
	return e.value, true
}

// Release drops one reference and frees the handle when none remain.
// It reports whether the handle was freed.
func (t *Table) Release(handle Handle) bool {
	if handle == 0 {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx := handle - 1
	if idx >= Handle(len(t.entries)) {
		return false
	}
	e := &t.entries[idx]
	if !e.valid {
		return false
	}
	if e.refs > 1 {
		e.refs--
		return false
	}

	if e.key != nil {
		delete(t.index, e.key)
	}
	*e = entry{}
	t.freeList = append(t.freeList, handle)
	return true
}

// Len returns the number of live handles.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries) - len(t.freeList)
}

// Close drops every handle. Later Puts fail with ErrClosed.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	t.entries = nil
	t.freeList = nil
	t.index = nil
	return nil
}
