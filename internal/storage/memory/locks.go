package memory

import (
	"sort"
	"sync"
)

// numberLocks hands out one mutex per phone number. Entries are reference
// counted and dropped once nobody holds or waits on them.
type numberLocks struct {
	mu   sync.Mutex
	held map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newNumberLocks() *numberLocks {
	return &numberLocks{held: map[string]*lockEntry{}}
}

// lock acquires every number in a global order and returns the release func.
func (l *numberLocks) lock(numbers []string) func() {
	keys := uniqueSorted(numbers)
	entries := make([]*lockEntry, len(keys))

	l.mu.Lock()
	for i, k := range keys {
		e := l.held[k]
		if e == nil {
			e = &lockEntry{}
			l.held[k] = e
		}
		e.refs++
		entries[i] = e
	}
	l.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
	}

	return func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
		}
		l.mu.Lock()
		for i, k := range keys {
			entries[i].refs--
			if entries[i].refs == 0 {
				delete(l.held, k)
			}
		}
		l.mu.Unlock()
	}
}

func uniqueSorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	n := 0
	for i, s := range out {
		if i > 0 && s == out[n-1] {
			continue
		}
		out[n] = s
		n++
	}
	return out[:n]
}
