package cache

// Entry is a single key/value pair held by a FIFO.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

type fifoNode[K comparable, V any] struct {
	entry      Entry[K, V]
	prev, next *fifoNode[K, V]
}

// FIFO is a capacity-bounded map that remembers insertion order.
//
// Eviction order is strictly first-in first-out: reads never reorder entries
// and overwriting an existing key keeps its original position.
//
// Contract:
// - Concurrency: not safe for concurrent use; callers synchronize.
// - Capacity: Len() never exceeds Cap().
type FIFO[K comparable, V any] struct {
	capacity int
	index    map[K]*fifoNode[K, V]
	head     *fifoNode[K, V] // oldest
	tail     *fifoNode[K, V] // newest
}

// NewFIFO creates a FIFO holding at most capacity entries.
// A capacity below 1 is treated as 1.
func NewFIFO[K comparable, V any](capacity int) *FIFO[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &FIFO[K, V]{
		capacity: capacity,
		index:    make(map[K]*fifoNode[K, V], capacity),
	}
}

// Get returns the value stored under key without affecting eviction order.
func (f *FIFO[K, V]) Get(key K) (V, bool) {
	node, ok := f.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	return node.entry.Value, true
}

// Contains reports whether key is present.
func (f *FIFO[K, V]) Contains(key K) bool {
	_, ok := f.index[key]
	return ok
}

// Set stores value under key.
//
// An existing key is overwritten in place. A new key inserted while the FIFO
// is full first removes the oldest entry, which is returned with evicted=true.
func (f *FIFO[K, V]) Set(key K, value V) (old Entry[K, V], evicted bool) {
	if node, ok := f.index[key]; ok {
		node.entry.Value = value
		return Entry[K, V]{}, false
	}

	if len(f.index) >= f.capacity {
		old, evicted = f.removeNode(f.head), true
	}

	node := &fifoNode[K, V]{entry: Entry[K, V]{Key: key, Value: value}}
	if f.tail == nil {
		f.head = node
	} else {
		node.prev = f.tail
		f.tail.next = node
	}
	f.tail = node
	f.index[key] = node

	return old, evicted
}

// Delete removes key and returns its value.
func (f *FIFO[K, V]) Delete(key K) (V, bool) {
	node, ok := f.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	return f.removeNode(node).Value, true
}

// Oldest returns the entry that would be evicted next.
func (f *FIFO[K, V]) Oldest() (Entry[K, V], bool) {
	if f.head == nil {
		return Entry[K, V]{}, false
	}
	return f.head.entry, true
}

// PopOldest removes and returns the oldest entry.
func (f *FIFO[K, V]) PopOldest() (Entry[K, V], bool) {
	if f.head == nil {
		return Entry[K, V]{}, false
	}
	return f.removeNode(f.head), true
}

// Keys returns the keys from oldest to newest.
func (f *FIFO[K, V]) Keys() []K {
	keys := make([]K, 0, len(f.index))
	for n := f.head; n != nil; n = n.next {
		keys = append(keys, n.entry.Key)
	}
	return keys
}

// Len returns the number of stored entries.
func (f *FIFO[K, V]) Len() int {
	return len(f.index)
}

// Cap returns the maximum number of entries.
func (f *FIFO[K, V]) Cap() int {
	return f.capacity
}

// Full reports whether the next new key would evict an entry.
func (f *FIFO[K, V]) Full() bool {
	return len(f.index) >= f.capacity
}

func (f *FIFO[K, V]) removeNode(node *fifoNode[K, V]) Entry[K, V] {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		f.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		f.tail = node.prev
	}
	node.prev, node.next = nil, nil
	delete(f.index, node.entry.Key)
	return node.entry
}
