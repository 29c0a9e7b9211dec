// Package registry provides a generic, insertion-ordered, thread-safe registry
// for values indexed by key.
//
// msgbus uses it for transmitter descriptors (where broadcast order must match
// registration order) and for the type-keyed factories held by the Container.
//
// # Basic Usage
//
//	r := registry.New[string, int]()
//	if err := r.Add("one", 1); err != nil {
//	    // registry.ErrDuplicateKey
//	}
//
//	value, ok := r.Get("one")
//
// Add refuses to overwrite; Register upserts. Keys, Values and Range always
// follow insertion order.
//
// # Lazy Initialization
//
// GetOrCreate is atomic. The factory is called at most once per key:
//
//	instances := registry.New[string, any]()
//	svc := instances.GetOrCreate("clock", func() any { return newClock() })
package registry
