package entity

import "sort"

// ID identifies an entity. It doubles as the uid clients see.
type ID uint64

// Marker is the value type of flag components.
type Marker struct{}

// Table is one component column.
type Table[T any] struct {
	rows map[ID]T
}

func newTable[T any]() *Table[T] { return &Table[T]{rows: map[ID]T{}} }

func (t *Table[T]) Get(id ID) (T, bool) {
	v, ok := t.rows[id]
	return v, ok
}

func (t *Table[T]) Has(id ID) bool {
	_, ok := t.rows[id]
	return ok
}

func (t *Table[T]) Set(id ID, v T) { t.rows[id] = v }

// Update applies fn to an existing row.
func (t *Table[T]) Update(id ID, fn func(*T)) bool {
	v, ok := t.rows[id]
	if !ok {
		return false
	}
	fn(&v)
	t.rows[id] = v
	return true
}

func (t *Table[T]) Remove(id ID) (T, bool) {
	v, ok := t.rows[id]
	delete(t.rows, id)
	return v, ok
}

func (t *Table[T]) Len() int { return len(t.rows) }

// IDs lists the rows in ascending order.
func (t *Table[T]) IDs() []ID {
	ids := make([]ID, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Each visits rows in ascending id order. Returning false stops the walk.
// fn may modify or remove the visited row.
func (t *Table[T]) Each(fn func(ID, T) bool) {
	for _, id := range t.IDs() {
		v, ok := t.rows[id]
		if !ok {
			continue
		}
		if !fn(id, v) {
			return
		}
	}
}

func (t *Table[T]) Clear() {
	clear(t.rows)
}

func (t *Table[T]) drop(id ID) { delete(t.rows, id) }
