package broker

import (
	"testing"
	"time"
)

func TestCache_RevisionIncrements(t *testing.T) {
	c := NewCache()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	if _, ok := c.Get(socAddr); ok {
		t.Fatal("Get() on empty cache ok = true")
	}

	c.store(socAddr, 1.0)
	cv := c.store(socAddr, 2.0)

	if cv.Revision != 2 || cv.Value != 2.0 || !cv.UpdatedAt.Equal(fixed) {
		t.Errorf("store() = %+v, want revision 2 value 2", cv)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestCache_SnapshotIsCopy(t *testing.T) {
	c := NewCache()
	c.store(socAddr, 1.0)

	snap := c.Snapshot()
	delete(snap, socAddr)

	if _, ok := c.Get(socAddr); !ok {
		t.Error("deleting from snapshot changed the cache")
	}
}
