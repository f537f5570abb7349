// ABOUTME: Keyed mutex serializing automation calls per target document.
// ABOUTME: Entries are refcounted and removed when the last holder unlocks.

package dispatch

import "sync"

// KeyedMutex grants exclusive access per string key. Distinct keys proceed
// concurrently; the empty key is a real key (automation calls that target
// the active document serialize together).
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*lockEntry)}
}

// Lock acquires the mutex for key and returns its unlock func. The entry is
// created on first use and dropped once no caller holds or awaits it, so the
// map does not grow with the set of document names ever seen.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &lockEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
