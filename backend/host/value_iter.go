package host

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/wippyai/polyglot/errors"
	"github.com/wippyai/polyglot/impl"
)

// iterator walks a snapshot of elements.
type iterator struct {
	mu    sync.Mutex
	items []any
	pos   int
}

func (it *iterator) hasNext() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.pos < len(it.items)
}

func (it *iterator) next() (any, bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.pos >= len(it.items) {
		return nil, false
	}
	x := it.items[it.pos]
	it.pos++
	return x, true
}

func (valueDispatch) Iterator(r any) (impl.ValueRef, error) {
	v := valueOf(r)
	if !v.scope.caps(v.v).Has(impl.CapIterable) || !v.scope.policy(impl.APIAccess.IsIterableAccessible) {
		return impl.ValueRef{}, v.unsupported("Iterator")
	}
	rv, _ := v.array()
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return v.scope.wrap(&iterator{items: items}), nil
}

func (v *value) iterator(op string) (*iterator, error) {
	it, ok := v.v.(*iterator)
	if !ok || !v.scope.policy(impl.APIAccess.IsIteratorAccessible) {
		return nil, v.unsupported(op)
	}
	return it, nil
}

func (valueDispatch) HasIteratorNextElement(r any) (bool, error) {
	it, err := valueOf(r).iterator("HasIteratorNextElement")
	if err != nil {
		return false, err
	}
	return it.hasNext(), nil
}

func (valueDispatch) IteratorNextElement(r any) (impl.ValueRef, error) {
	v := valueOf(r)
	it, err := v.iterator("IteratorNextElement")
	if err != nil {
		return impl.ValueRef{}, err
	}
	x, ok := it.next()
	if !ok {
		return impl.ValueRef{}, errors.New(errors.PhaseDispatch, errors.KindNotFound).
			Detail("iterator has no more elements").
			Build()
	}
	return v.scope.wrap(x), nil
}

func (valueDispatch) MetaObject(r any) (impl.ValueRef, bool) {
	v := valueOf(r)
	switch v.v.(type) {
	case nil, metaType:
		return impl.ValueRef{}, false
	}
	return v.scope.wrap(metaType{t: reflect.TypeOf(v.v)}), true
}

func (v *value) meta(op string) (reflect.Type, error) {
	m, ok := v.v.(metaType)
	if !ok {
		return nil, v.unsupported(op)
	}
	return m.t, nil
}

func (valueDispatch) MetaQualifiedName(r any) (string, error) {
	t, err := valueOf(r).meta("MetaQualifiedName")
	if err != nil {
		return "", err
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name(), nil
	}
	return t.String(), nil
}

func (valueDispatch) MetaSimpleName(r any) (string, error) {
	t, err := valueOf(r).meta("MetaSimpleName")
	if err != nil {
		return "", err
	}
	if t.Name() != "" {
		return t.Name(), nil
	}
	return t.String(), nil
}

func (valueDispatch) IsMetaInstance(r any, instance any) (bool, error) {
	v := valueOf(r)
	t, err := v.meta("IsMetaInstance")
	if err != nil {
		return false, err
	}
	x := v.scope.unwrap(instance)
	if x == nil {
		return false, nil
	}
	return reflect.TypeOf(x).AssignableTo(t), nil
}

// hash returns the map behind a hash-entries value.
func (v *value) hash(op string) (reflect.Value, error) {
	if !v.scope.caps(v.v).Has(impl.CapHashEntries) {
		return reflect.Value{}, v.unsupported(op)
	}
	return reflect.ValueOf(v.v), nil
}

func (valueDispatch) HashSize(r any) (int64, error) {
	m, err := valueOf(r).hash("HashSize")
	if err != nil {
		return 0, err
	}
	return int64(m.Len()), nil
}

// lookup finds key in m. Keys that cannot be used as the map's key type are
// absent.
func (v *value) lookup(m reflect.Value, key any) (reflect.Value, bool) {
	k, err := coerce(v.scope.unwrap(key), m.Type().Key())
	if err != nil {
		return reflect.Value{}, false
	}
	mv := m.MapIndex(k)
	return mv, mv.IsValid()
}

func (valueDispatch) HashValue(r any, key any) (impl.ValueRef, error) {
	v := valueOf(r)
	m, err := v.hash("HashValue")
	if err != nil {
		return impl.ValueRef{}, err
	}
	if mv, ok := v.lookup(m, key); ok {
		return v.scope.wrap(mv.Interface()), nil
	}
	return v.scope.wrap(nil), nil
}

func (valueDispatch) HashValueOrDefault(r any, key any, def any) (impl.ValueRef, error) {
	v := valueOf(r)
	m, err := v.hash("HashValueOrDefault")
	if err != nil {
		return impl.ValueRef{}, err
	}
	if mv, ok := v.lookup(m, key); ok {
		return v.scope.wrap(mv.Interface()), nil
	}
	if api, ok := v.scope.backend.api(); ok {
		if ref, ok := api.ValueRef(def); ok {
			return ref, nil
		}
	}
	return v.scope.wrap(v.scope.unwrap(def)), nil
}

func (valueDispatch) PutHashEntry(r any, key any, x any) error {
	v := valueOf(r)
	m, err := v.hash("PutHashEntry")
	if err != nil {
		return err
	}
	if m.IsNil() {
		return errors.InvalidInput(errors.PhaseDispatch, "cannot put an entry into a nil map")
	}
	k, err := coerce(v.scope.unwrap(key), m.Type().Key())
	if err != nil {
		return err
	}
	ev, err := coerce(v.scope.unwrap(x), m.Type().Elem())
	if err != nil {
		return err
	}
	m.SetMapIndex(k, ev)
	return nil
}

func (valueDispatch) RemoveHashEntry(r any, key any) (bool, error) {
	v := valueOf(r)
	m, err := v.hash("RemoveHashEntry")
	if err != nil {
		return false, err
	}
	k, err := coerce(v.scope.unwrap(key), m.Type().Key())
	if err != nil {
		return false, nil
	}
	if !m.MapIndex(k).IsValid() {
		return false, nil
	}
	m.SetMapIndex(k, reflect.Value{})
	return true, nil
}

// sortedKeys orders map keys by their printed form so iteration is stable.
func sortedKeys(m reflect.Value) []reflect.Value {
	keys := m.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
	})
	return keys
}

func (v *value) hashIterator(op string, item func(m, k reflect.Value) any) (impl.ValueRef, error) {
	m, err := v.hash(op)
	if err != nil {
		return impl.ValueRef{}, err
	}
	keys := sortedKeys(m)
	items := make([]any, len(keys))
	for i, k := range keys {
		items[i] = item(m, k)
	}
	return v.scope.wrap(&iterator{items: items}), nil
}

// HashEntriesIterator yields each entry as a two-element []any of key and
// value.
func (valueDispatch) HashEntriesIterator(r any) (impl.ValueRef, error) {
	return valueOf(r).hashIterator("HashEntriesIterator", func(m, k reflect.Value) any {
		return []any{k.Interface(), m.MapIndex(k).Interface()}
	})
}

func (valueDispatch) HashKeysIterator(r any) (impl.ValueRef, error) {
	return valueOf(r).hashIterator("HashKeysIterator", func(_, k reflect.Value) any {
		return k.Interface()
	})
}

func (valueDispatch) HashValuesIterator(r any) (impl.ValueRef, error) {
	return valueOf(r).hashIterator("HashValuesIterator", func(m, k reflect.Value) any {
		return m.MapIndex(k).Interface()
	})
}
