// Package dualmap provides an insertion-ordered map addressed by two keys.
//
// Values live in buckets: the first key selects a bucket, the second key
// selects an entry inside it. Both the bucket order and the entry order
// inside each bucket follow insertion order, which makes iteration results
// deterministic. That property is relied on for "first declared wins"
// semantics such as rule claiming.
package dualmap

import "iter"

// Bucket is the ordered K2 -> V view of one K1 key.
type Bucket[K2 comparable, V any] struct {
	keys   []K2
	values map[K2]V
}

func newBucket[K2 comparable, V any]() *Bucket[K2, V] {
	return &Bucket[K2, V]{values: make(map[K2]V)}
}

// Get returns the value stored under k2.
func (b *Bucket[K2, V]) Get(k2 K2) (V, bool) {
	if b == nil {
		var zero V
		return zero, false
	}
	v, ok := b.values[k2]
	return v, ok
}

// Keys returns the second keys in insertion order.
func (b *Bucket[K2, V]) Keys() []K2 {
	if b == nil {
		return nil
	}
	out := make([]K2, len(b.keys))
	copy(out, b.keys)
	return out
}

// Values returns the bucket's values in insertion order.
func (b *Bucket[K2, V]) Values() []V {
	if b == nil {
		return nil
	}
	out := make([]V, 0, len(b.keys))
	for _, k := range b.keys {
		out = append(out, b.values[k])
	}
	return out
}

// Len returns the number of entries in the bucket.
func (b *Bucket[K2, V]) Len() int {
	if b == nil {
		return 0
	}
	return len(b.keys)
}

// All iterates the bucket in insertion order.
func (b *Bucket[K2, V]) All() iter.Seq2[K2, V] {
	return func(yield func(K2, V) bool) {
		if b == nil {
			return
		}
		for _, k := range b.keys {
			if !yield(k, b.values[k]) {
				return
			}
		}
	}
}

func (b *Bucket[K2, V]) put(k2 K2, v V) {
	if _, ok := b.values[k2]; !ok {
		b.keys = append(b.keys, k2)
	}
	b.values[k2] = v
}

func (b *Bucket[K2, V]) delete(k2 K2) bool {
	if _, ok := b.values[k2]; !ok {
		return false
	}
	delete(b.values, k2)
	for i, k := range b.keys {
		if k == k2 {
			b.keys = append(b.keys[:i], b.keys[i+1:]...)
			break
		}
	}
	return true
}

// Map stores values under a (K1, K2) pair.
// The zero value is ready to use. A Map is not safe for concurrent use.
type Map[K1, K2 comparable, V any] struct {
	order   []K1
	buckets map[K1]*Bucket[K2, V]
}

// New returns an empty Map.
func New[K1, K2 comparable, V any]() *Map[K1, K2, V] {
	return &Map[K1, K2, V]{}
}

// Put stores v under (k1, k2), overwriting any previous value in place.
func (m *Map[K1, K2, V]) Put(k1 K1, k2 K2, v V) {
	if m.buckets == nil {
		m.buckets = make(map[K1]*Bucket[K2, V])
	}
	b, ok := m.buckets[k1]
	if !ok {
		b = newBucket[K2, V]()
		m.buckets[k1] = b
		m.order = append(m.order, k1)
	}
	b.put(k2, v)
}

// Get returns the value stored under (k1, k2).
func (m *Map[K1, K2, V]) Get(k1 K1, k2 K2) (V, bool) {
	return m.buckets[k1].Get(k2)
}

// Has reports whether a value is stored under (k1, k2).
func (m *Map[K1, K2, V]) Has(k1 K1, k2 K2) bool {
	_, ok := m.Get(k1, k2)
	return ok
}

// ByKey1 returns the bucket stored under k1.
func (m *Map[K1, K2, V]) ByKey1(k1 K1) (*Bucket[K2, V], bool) {
	b, ok := m.buckets[k1]
	return b, ok
}

// ByKey2 returns every value stored under k2, in K1 insertion order.
func (m *Map[K1, K2, V]) ByKey2(k2 K2) []V {
	var out []V
	for _, k1 := range m.order {
		if v, ok := m.buckets[k1].values[k2]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Keys1 returns the first keys in insertion order.
func (m *Map[K1, K2, V]) Keys1() []K1 {
	out := make([]K1, len(m.order))
	copy(out, m.order)
	return out
}

// Values returns every value, bucket by bucket, in insertion order.
func (m *Map[K1, K2, V]) Values() []V {
	var out []V
	for _, k1 := range m.order {
		out = append(out, m.buckets[k1].Values()...)
	}
	return out
}

// All iterates every (k1, k2, v) triple in insertion order.
func (m *Map[K1, K2, V]) All() iter.Seq[Entry[K1, K2, V]] {
	return func(yield func(Entry[K1, K2, V]) bool) {
		for _, k1 := range m.order {
			b := m.buckets[k1]
			for _, k2 := range b.keys {
				if !yield(Entry[K1, K2, V]{Key1: k1, Key2: k2, Value: b.values[k2]}) {
					return
				}
			}
		}
	}
}

// Len returns the total number of stored values.
func (m *Map[K1, K2, V]) Len() int {
	n := 0
	for _, b := range m.buckets {
		n += len(b.keys)
	}
	return n
}

// Delete removes the value under (k1, k2). Empty buckets are dropped.
func (m *Map[K1, K2, V]) Delete(k1 K1, k2 K2) bool {
	b, ok := m.buckets[k1]
	if !ok || !b.delete(k2) {
		return false
	}
	if b.Len() == 0 {
		delete(m.buckets, k1)
		for i, k := range m.order {
			if k == k1 {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	return true
}

// Clear removes every value.
func (m *Map[K1, K2, V]) Clear() {
	m.order = nil
	m.buckets = nil
}

// Entry is one stored triple, as produced by All.
type Entry[K1, K2 comparable, V any] struct {
	Key1  K1
	Key2  K2
	Value V
}
