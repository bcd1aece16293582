package feature

import (
	"sync"
	"testing"
	"time"
)

func TestAccumulator_Add(t *testing.T) {
	acc := NewAccumulator(0)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	key := Key{IP: "192.168.1.1", AttackTypeID: 2}

	acc.Add(key, 1, base.Add(time.Second))
	acc.Add(key, 2, base)
	g := acc.Add(key, 3, base.Add(2*time.Second))

	if g.Count != 3 {
		t.Errorf("Expected 3 hits, got %d", g.Count)
	}
	if !g.FirstSeen.Equal(base) || !g.LastSeen.Equal(base.Add(2*time.Second)) {
		t.Errorf("Unexpected window %v..%v", g.FirstSeen, g.LastSeen)
	}
	if len(g.LogIDs) != 3 {
		t.Errorf("Expected 3 log ids, got %d", len(g.LogIDs))
	}
}

func TestAccumulator_GroupsOrdered(t *testing.T) {
	acc := NewAccumulator(0)
	now := time.Now()

	acc.Add(Key{IP: "10.0.0.2", AttackTypeID: 1}, 1, now)
	for i := 0; i < 3; i++ {
		acc.Add(Key{IP: "10.0.0.9", AttackTypeID: 1}, uint(10+i), now)
	}
	acc.Add(Key{IP: "10.0.0.1", AttackTypeID: 1}, 20, now)

	groups := acc.Groups()
	if len(groups) != 3 {
		t.Fatalf("Expected 3 groups, got %d", len(groups))
	}
	want := []string{"10.0.0.9", "10.0.0.1", "10.0.0.2"}
	for i, ip := range want {
		if groups[i].IP != ip {
			t.Errorf("Position %d: expected %s, got %s", i, ip, groups[i].IP)
		}
	}
}

func TestAccumulator_SameIPDifferentAttackTypes(t *testing.T) {
	acc := NewAccumulator(0)
	now := time.Now()
	acc.Add(Key{IP: "1.2.3.4", AttackTypeID: 1}, 1, now)
	acc.Add(Key{IP: "1.2.3.4", AttackTypeID: 2}, 2, now)

	if len(acc.Groups()) != 2 {
		t.Error("Expected separate groups per attack type")
	}
}

func TestAccumulator_Eviction(t *testing.T) {
	acc := NewAccumulator(2)
	base := time.Now()

	acc.Add(Key{IP: "1.1.1.1"}, 1, base)
	acc.Add(Key{IP: "1.1.1.1"}, 2, base)
	acc.Add(Key{IP: "2.2.2.2"}, 3, base)
	acc.Add(Key{IP: "3.3.3.3"}, 4, base.Add(time.Second))

	if _, ok := acc.Get(Key{IP: "2.2.2.2"}); ok {
		t.Error("Expected lowest-count key to be evicted")
	}
	if _, ok := acc.Get(Key{IP: "1.1.1.1"}); !ok {
		t.Error("Expected busiest key to survive")
	}
	if acc.Evicted() != 1 {
		t.Errorf("Expected 1 eviction, got %d", acc.Evicted())
	}
}

func TestAccumulator_Concurrency(t *testing.T) {
	acc := NewAccumulator(0)

	var wg sync.WaitGroup
	key := Key{IP: "1.2.3.4", AttackTypeID: 1}
	iterations := 100

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				acc.Add(key, uint(id*iterations+j), time.Now())
			}
		}(i)
	}

	wg.Wait()

	g, ok := acc.Get(key)
	if !ok {
		t.Fatal("Expected group, got none")
	}

	expected := 10 * iterations
	if g.Count != expected {
		t.Errorf("Expected %d hits, got %d", expected, g.Count)
	}
}
