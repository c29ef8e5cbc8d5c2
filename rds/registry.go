package rds

import "fmt"

// groupKey identifies a handler by group type and version.
type groupKey struct {
	Type     int
	VersionB bool
}

// handlerFunc mutates decoder state for one received group.
type handlerFunc func(d *Decoder, g Group)

var registry = make(map[groupKey]handlerFunc)

// registerHandler is called by each group file in its init().
func registerHandler(gtype int, versionB bool, fn handlerFunc) {
	key := groupKey{gtype, versionB}
	if _, exists := registry[key]; exists {
		panic(fmt.Sprintf("handler for %v already registered", key))
	}
	registry[key] = fn
}

// handlerFor returns the handler (if any) for this type/version pair.
func handlerFor(gtype int, versionB bool) (handlerFunc, bool) {
	fn, ok := registry[groupKey{gtype, versionB}]
	return fn, ok
}
