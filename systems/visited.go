package systems

// VisitedMap is the closed set of a search: a key to record map whose
// storage survives Reset so repeated searches do not reallocate.
type VisitedMap[K comparable, V any] struct {
	m map[K]V
}

// NewVisitedMap allocates a map sized for capacity entries.
func NewVisitedMap[K comparable, V any](capacity int) *VisitedMap[K, V] {
	return &VisitedMap[K, V]{m: make(map[K]V, capacity)}
}

// Get returns the record for key.
func (v *VisitedMap[K, V]) Get(key K) (V, bool) {
	r, ok := v.m[key]
	return r, ok
}

// Put stores or replaces the record for key.
func (v *VisitedMap[K, V]) Put(key K, r V) { v.m[key] = r }

// TryAdd stores r only if key is absent and reports whether it did.
func (v *VisitedMap[K, V]) TryAdd(key K, r V) bool {
	if _, ok := v.m[key]; ok {
		return false
	}
	v.m[key] = r
	return true
}

// Has reports whether key has a record.
func (v *VisitedMap[K, V]) Has(key K) bool {
	_, ok := v.m[key]
	return ok
}

// Len returns the number of records.
func (v *VisitedMap[K, V]) Len() int { return len(v.m) }

// Reset removes all records.
func (v *VisitedMap[K, V]) Reset() { clear(v.m) }
