package memreclaim

import "testing"

func TestRuntime_Reclaim(t *testing.T) {
	r := New()
	garbage := make([][]byte, 0, 16)
	for i := 0; i < 16; i++ {
		garbage = append(garbage, make([]byte, 1<<16))
	}
	_ = garbage

	r.Reclaim()
	r.Reclaim()
	if r.Count() != 2 {
		t.Errorf("expected 2 reclaims, got %d", r.Count())
	}
}
