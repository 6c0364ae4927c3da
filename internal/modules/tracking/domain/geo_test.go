package domain

import "testing"

func TestHaversineMeters(t *testing.T) {
	// Jakarta (-6.2, 106.816) to Bandung (-6.9175, 107.6191) ~ 115-120 km
	d := HaversineMeters(-6.2, 106.816, -6.9175, 107.6191)
	if d < 100_000 || d > 140_000 {
		t.Fatalf("unexpected distance: %v", d)
	}
	if HaversineMeters(10, 10, 10, 10) != 0 {
		t.Fatalf("identical points must be zero meters apart")
	}
}
