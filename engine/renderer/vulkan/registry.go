package vulkan

// registry maps driver handles onto native objects. Handles start at 1 so the
// zero value stays null.
type registry[H ~uint64, V any] struct {
	next  H
	items map[H]V
}

func newRegistry[H ~uint64, V any]() *registry[H, V] {
	return &registry[H, V]{items: make(map[H]V)}
}

func (r *registry[H, V]) add(v V) H {
	r.next++
	r.items[r.next] = v
	return r.next
}

func (r *registry[H, V]) get(h H) (V, bool) {
	v, ok := r.items[h]
	return v, ok
}

func (r *registry[H, V]) remove(h H) (V, bool) {
	v, ok := r.items[h]
	delete(r.items, h)
	return v, ok
}

func (r *registry[H, V]) len() int {
	return len(r.items)
}
