package task

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// AbsentChecksum is the sentinel recorded when a task does not exist in a
// store. It can never collide with a real checksum, which is always hex.
const AbsentChecksum = "absent"

// Canonical returns the canonical serialized form of a task's data fields:
// sync metadata stripped, unordered sets sorted. Two tasks with identical
// content always produce identical bytes, regardless of which store or
// dialect they were parsed from.
func Canonical(t *Task) ([]byte, error) {
	c := t.Clone()
	c.Meta = nil
	c.sortSets()
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize task %s: %w", t.ID, err)
	}
	return data, nil
}

// Checksum computes the SHA-256 content checksum of a task's canonical form,
// hex-encoded. This is the value stored in distributed-document sync metadata
// and compared by the synchronization engine.
func Checksum(t *Task) (string, error) {
	data, err := Canonical(t)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ChecksumBytes hashes raw store bytes. Used for checkpoint aggregate
// checksums, where content is opaque.
func ChecksumBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// sortSets orders every unordered set in the task deterministically.
// Ordered lists (dependencies, checklists, subtasks, refs) are untouched.
func (t *Task) sortSets() {
	t.Context.sortSets()
	for i := range t.Subtasks {
		if t.Subtasks[i].Context != nil {
			t.Subtasks[i].Context.sortSets()
		}
	}
}

func (tc *TechnicalContext) sortSets() {
	sort.Strings(tc.Stack)
	sort.Strings(tc.Protocols)
	sort.Strings(tc.Libraries)
}

// Equal reports whether two tasks have identical content, ignoring sync
// metadata and set ordering. Checksum equality is the same comparison; Equal
// avoids hashing when both values are already in memory.
func Equal(a, b *Task) bool {
	ca, err := Canonical(a)
	if err != nil {
		return false
	}
	cb, err := Canonical(b)
	if err != nil {
		return false
	}
	return string(ca) == string(cb)
}
