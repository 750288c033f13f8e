package task

import (
	"testing"
	"time"
)

// TestChecksum_Deterministic tests that identical content hashes identically
func TestChecksum_Deterministic(t *testing.T) {
	a, err := Checksum(validTask())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Checksum(validTask())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Errorf("checksums differ for identical tasks: %s vs %s", a, b)
	}
	if a == AbsentChecksum {
		t.Error("real checksum collided with the absent sentinel")
	}
}

// TestChecksum_IgnoresSetOrder tests that unordered sets do not affect the hash
func TestChecksum_IgnoresSetOrder(t *testing.T) {
	a := validTask()
	a.Context.Stack = []string{"go", "redis", "yaml"}
	b := validTask()
	b.Context.Stack = []string{"yaml", "go", "redis"}

	ca, _ := Checksum(a)
	cb, _ := Checksum(b)
	if ca != cb {
		t.Error("set ordering changed the checksum")
	}
}

// TestChecksum_IgnoresSyncMetadata tests that sync metadata is excluded
func TestChecksum_IgnoresSyncMetadata(t *testing.T) {
	a := validTask()
	b := validTask()
	b.Meta = &SyncMetadata{
		LastSynced:    time.Now(),
		Checksum:      "whatever",
		Origin:        "distributed",
		Phase:         "migration",
		SchemaVersion: 9,
	}

	ca, _ := Checksum(a)
	cb, _ := Checksum(b)
	if ca != cb {
		t.Error("sync metadata leaked into the content checksum")
	}
}

// TestChecksum_ContentSensitive tests that data field changes change the hash
func TestChecksum_ContentSensitive(t *testing.T) {
	a := validTask()
	b := validTask()
	b.Status = "shipped"

	ca, _ := Checksum(a)
	cb, _ := Checksum(b)
	if ca == cb {
		t.Error("status change did not change the checksum")
	}
}

// TestChecksum_OrderedListsPreserved tests that checklist order matters
func TestChecksum_OrderedListsPreserved(t *testing.T) {
	a := validTask()
	a.Acceptance = []ChecklistItem{{Text: "first"}, {Text: "second"}}
	b := validTask()
	b.Acceptance = []ChecklistItem{{Text: "second"}, {Text: "first"}}

	ca, _ := Checksum(a)
	cb, _ := Checksum(b)
	if ca == cb {
		t.Error("acceptance criteria order should affect the checksum")
	}
}

// TestEqual tests content equality ignoring metadata
func TestEqual(t *testing.T) {
	a := validTask()
	b := validTask()
	b.Meta = &SyncMetadata{SchemaVersion: 3}
	if !Equal(a, b) {
		t.Error("tasks differing only in sync metadata should be equal")
	}
	b.Title = "different"
	if Equal(a, b) {
		t.Error("tasks with different titles should not be equal")
	}
}
