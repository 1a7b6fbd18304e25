package cache

// lruNode links one key into the recency ring.
type lruNode[K comparable, V any] struct {
	key        K
	value      V
	prev, next *lruNode[K, V]
}

// lruRing is a circular doubly-linked list with a sentinel. The node after
// the sentinel is the most recently used, the node before it the least.
// It is not safe for concurrent use.
type lruRing[K comparable, V any] struct {
	root lruNode[K, V]
	len  int
}

func (r *lruRing[K, V]) init() {
	r.root.next = &r.root
	r.root.prev = &r.root
	r.len = 0
}

func (r *lruRing[K, V]) pushFront(key K, value V) *lruNode[K, V] {
	n := &lruNode[K, V]{key: key, value: value}
	r.insertFront(n)
	r.len++
	return n
}

func (r *lruRing[K, V]) insertFront(n *lruNode[K, V]) {
	n.prev = &r.root
	n.next = r.root.next
	r.root.next.prev = n
	r.root.next = n
}

func (r *lruRing[K, V]) touch(n *lruNode[K, V]) {
	if r.root.next == n {
		return
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	r.insertFront(n)
}

func (r *lruRing[K, V]) remove(n *lruNode[K, V]) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev, n.next = nil, nil
	r.len--
}

// oldest returns the least recently used node, or nil.
func (r *lruRing[K, V]) oldest() *lruNode[K, V] {
	if r.len == 0 {
		return nil
	}
	return r.root.prev
}
