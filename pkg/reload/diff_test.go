package reload

import "testing"

func TestDiff_IsEmpty(t *testing.T) {
	if !(Diff{}).IsEmpty() {
		t.Fatal("zero-value Diff should report empty")
	}
	if (Diff{Added: []string{"a"}}).IsEmpty() {
		t.Fatal("Diff with an addition should not report empty")
	}
}
