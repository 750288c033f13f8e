package task

import "testing"

// TestParseWII_Canonical tests parsing of the full composite form
func TestParseWII_Canonical(t *testing.T) {
	w, err := ParseWII("R1.WP2-T-01-3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Release != "R1" || w.WorkPackage != "WP2" || w.TaskID != "T-01" || w.Sequence != 3 {
		t.Errorf("unexpected components: %+v", w)
	}
}

// TestParseWII_DashedTaskID tests that task IDs containing dashes survive
func TestParseWII_DashedTaskID(t *testing.T) {
	w, err := ParseWII("R2.WP10-CORE-SYNC-7-12")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.TaskID != "CORE-SYNC-7" {
		t.Errorf("expected task ID CORE-SYNC-7, got %q", w.TaskID)
	}
	if w.Sequence != 12 {
		t.Errorf("expected sequence 12, got %d", w.Sequence)
	}
}

// TestParseWII_RoundTrip tests String is the inverse of ParseWII
func TestParseWII_RoundTrip(t *testing.T) {
	in := "R1.WP2-T-01-3"
	w, err := ParseWII(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.String() != in {
		t.Errorf("round trip changed key: %q -> %q", in, w.String())
	}
}

// TestParseWII_Malformed tests that each missing component is rejected
func TestParseWII_Malformed(t *testing.T) {
	cases := []string{
		"",
		"R1",
		"R1.WP2",
		"R1.WP2-T-01",    // no sequence
		"R1.WP2-T-01-x",  // non-numeric sequence
		"R1.WP2-T-01-0",  // sequence below 1
		".WP2-T-01-1",    // empty release
		"R1.-T-01-1",     // empty work package
	}
	for _, in := range cases {
		if _, err := ParseWII(in); err == nil {
			t.Errorf("expected parse of %q to fail, but it passed", in)
		}
	}
}
