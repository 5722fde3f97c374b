package reqid

import "testing"

func TestAllocReturnsNonZeroUniqueIDs(t *testing.T) {
	a := New()
	seen := make(map[uint32]bool)
	for i := 0; i < 1000; i++ {
		id, _, err := a.Alloc()
		if err != nil {
			t.Fatalf("Alloc failed: %v", err)
		}
		if id == 0 {
			t.Fatal("id must be non-zero")
		}
		if seen[id] {
			t.Fatalf("id %d allocated twice while live", id)
		}
		seen[id] = true
	}
	if a.Count() != 1000 {
		t.Fatalf("expected 1000 live ids, got %d", a.Count())
	}
}

func TestReleaseAllowsReuse(t *testing.T) {
	a := New()
	id, gen1, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	a.Release(id)
	if a.Live(id) {
		t.Fatal("id should not be live after release")
	}

	// Force the allocator to wrap back around to id by exhausting the
	// small window between allocations isn't practical here; instead
	// directly verify ClaimIfAbsent permits reuse with a bumped
	// generation, matching the wire path a server uses for client ids.
	gen2, ok := a.ClaimIfAbsent(id)
	if !ok {
		t.Fatal("expected reuse to succeed after release")
	}
	if gen2 == gen1 {
		t.Fatal("expected generation to change across reuse")
	}
}

func TestClaimIfAbsentRejectsCollision(t *testing.T) {
	a := New()
	id, _, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	if _, ok := a.ClaimIfAbsent(id); ok {
		t.Fatal("expected collision to be rejected while id is live")
	}
}

func TestAdvanceWrapsAroundSkippingZero(t *testing.T) {
	a := New()
	a.next = maxID
	id, _, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	if id != maxID {
		t.Fatalf("expected first alloc at maxID, got %d", id)
	}
	id2, _, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	if id2 != 1 {
		t.Fatalf("expected wraparound to 1, got %d", id2)
	}
}

func TestAllocSkipsLiveIDs(t *testing.T) {
	a := New()
	a.next = 5
	a.live[5] = 99
	id, _, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	if id != 6 {
		t.Fatalf("expected allocator to skip live id 5, got %d", id)
	}
}
