package vulkan

// Handle ties a driver handle to a null state. The zero Handle is null.
//
// A Handle has a single owner. Copying the struct does not copy ownership:
// transfer it with Take, which leaves the source null, and destroy it with
// Release. The raw value is only reachable through Get.
type Handle[T ~uint64] struct {
	value T
}

func MakeHandle[T ~uint64](value T) Handle[T] {
	return Handle[T]{value: value}
}

func (h Handle[T]) Get() T {
	return h.value
}

func (h Handle[T]) IsNull() bool {
	return h.value == 0
}

// Take moves the handle out, leaving h null.
func (h *Handle[T]) Take() Handle[T] {
	out := *h
	h.value = 0
	return out
}

// Release destroys the handle if it is not null and resets it to null.
func (h *Handle[T]) Release(destroy func(T)) {
	if h.value == 0 {
		return
	}
	destroy(h.value)
	h.value = 0
}

// Replace releases the current value and stores next.
func (h *Handle[T]) Replace(next T, destroy func(T)) {
	h.Release(destroy)
	h.value = next
}
