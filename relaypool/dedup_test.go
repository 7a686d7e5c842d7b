package relaypool

import (
	"testing"
	"time"
)

func TestAdmitRejectsDuplicate(t *testing.T) {
	c := newDedupCache(300*time.Second, 10000)
	if !c.Admit("abc") {
		t.Fatal("first Admit(abc) should succeed")
	}
	if c.Admit("abc") {
		t.Fatal("second Admit(abc) should report a duplicate")
	}
	if !c.Admit("def") {
		t.Fatal("Admit(def) should succeed, it is a distinct id")
	}
}

func TestMaybeCleanupExpiresOldEntries(t *testing.T) {
	c := newDedupCache(300*time.Second, 10000)
	now := int64(1_000_000)
	c.entries["old"] = now - 1000 // well past a 300s ttl
	c.entries["fresh"] = now - 10
	c.lastCleanup = 0 // force the 60s gate open

	c.maybeCleanup(now)

	if _, ok := c.entries["old"]; ok {
		t.Error("expected the expired entry to be removed")
	}
	if _, ok := c.entries["fresh"]; !ok {
		t.Error("expected the fresh entry to survive cleanup")
	}
}

func TestMaybeCleanupSkipsWithinSixtySecondGate(t *testing.T) {
	c := newDedupCache(300*time.Second, 10000)
	now := int64(1_000_000)
	c.entries["old"] = now - 1000
	c.lastCleanup = now - 30 // inside the 60s gate

	c.maybeCleanup(now)

	if _, ok := c.entries["old"]; !ok {
		t.Error("cleanup should not have run within the 60s gate")
	}
}

func TestMaybeCleanupTrimsToMaxSizeByOldestFirst(t *testing.T) {
	c := newDedupCache(3600*time.Second, 3)
	now := int64(1_000_000)
	c.entries["a"] = now - 40
	c.entries["b"] = now - 30
	c.entries["c"] = now - 20
	c.entries["d"] = now - 10
	c.lastCleanup = 0

	c.maybeCleanup(now)

	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}
	if _, ok := c.entries["a"]; ok {
		t.Error("expected the oldest entry to be evicted first")
	}
	if _, ok := c.entries["d"]; !ok {
		t.Error("expected the newest entry to survive")
	}
}
