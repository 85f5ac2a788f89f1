package geo

import (
	"testing"
	"time"
)

func TestDistanceMeters(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Point
		wantMin float64
		wantMax float64
	}{
		{"same point", Point{48.8584, 2.2945}, Point{48.8584, 2.2945}, 0, 0.001},
		{"eiffel to louvre", Point{48.8584, 2.2945}, Point{48.8606, 2.3376}, 3100, 3300},
		{"one degree of latitude", Point{0, 0}, Point{1, 0}, 111000, 111400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMeters(tt.a, tt.b)
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("DistanceMeters = %.1f, want between %.1f and %.1f", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func TestTransitTime(t *testing.T) {
	// 1 degree of latitude is ~111km; at 111 km/h that is about an hour.
	got := TransitTime(Point{0, 0}, Point{1, 0}, 111.2)
	if got < 59*time.Minute || got > 61*time.Minute {
		t.Errorf("TransitTime = %v, want about 1h", got)
	}

	if TransitTime(Point{0, 0}, Point{0, 0.001}, 0) <= 24*time.Hour {
		t.Error("zero speed should be treated as unreachable")
	}
}
