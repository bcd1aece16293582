package feature

import (
	"sort"
	"sync"
	"time"
)

// Key identifies one counted source: an IP for one attack type
type Key struct {
	IP           string
	AttackTypeID uint
}

// Group is the running count of log rows for one key
type Group struct {
	Key
	Count     int
	FirstSeen time.Time
	LastSeen  time.Time
	LogIDs    []uint
}

// Accumulator groups log rows by key
type Accumulator struct {
	mu      sync.Mutex
	groups  map[Key]*Group
	maxKeys int
	evicted int
}

// MaxTrackedKeys caps the number of keys held at once
const MaxTrackedKeys = 5000

// NewAccumulator creates a new accumulator. maxKeys <= 0 uses MaxTrackedKeys.
func NewAccumulator(maxKeys int) *Accumulator {
	if maxKeys <= 0 {
		maxKeys = MaxTrackedKeys
	}
	return &Accumulator{
		groups:  make(map[Key]*Group),
		maxKeys: maxKeys,
	}
}

// Add counts one log row against its key
func (a *Accumulator) Add(key Key, logID uint, ts time.Time) *Group {
	a.mu.Lock()
	defer a.mu.Unlock()

	g, exists := a.groups[key]
	if !exists {
		if len(a.groups) >= a.maxKeys {
			// Table full. Evict the least interesting entry to make room.
			a.evictLowPriority()
		}
		g = &Group{Key: key, FirstSeen: ts, LastSeen: ts}
		a.groups[key] = g
	}

	g.Count++
	g.LogIDs = append(g.LogIDs, logID)
	if ts.Before(g.FirstSeen) {
		g.FirstSeen = ts
	}
	if ts.After(g.LastSeen) {
		g.LastSeen = ts
	}
	return g
}

// Get returns a copy of the group for key
func (a *Accumulator) Get(key Key) (Group, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	g, ok := a.groups[key]
	if !ok {
		return Group{}, false
	}
	return copyGroup(g), true
}

// Groups returns every group, highest count first, then by IP
func (a *Accumulator) Groups() []Group {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Group, 0, len(a.groups))
	for _, g := range a.groups {
		out = append(out, copyGroup(g))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].IP != out[j].IP {
			return out[i].IP < out[j].IP
		}
		return out[i].AttackTypeID < out[j].AttackTypeID
	})
	return out
}

// Evicted reports how many keys were dropped to respect the cap
func (a *Accumulator) Evicted() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.evicted
}

func copyGroup(g *Group) Group {
	c := *g
	c.LogIDs = append([]uint(nil), g.LogIDs...)
	return c
}

// evictLowPriority removes one entry: lowest count first, then the oldest.
// Caller must hold lock.
func (a *Accumulator) evictLowPriority() {
	var victim *Group
	for _, g := range a.groups {
		switch {
		case victim == nil:
			victim = g
		case g.Count < victim.Count:
			victim = g
		case g.Count == victim.Count && g.LastSeen.Before(victim.LastSeen):
			victim = g
		}
	}
	if victim != nil {
		delete(a.groups, victim.Key)
		a.evicted++
	}
}
