package geo

import (
	"math"
	"testing"

	"haven/internal/types"
)

func TestDistanceMeters_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		lat1      float64
		lng1      float64
		lat2      float64
		lng2      float64
		want      float64
		tolerance float64
	}{
		{
			name: "same point",
			lat1: 25.033, lng1: 121.565,
			lat2: 25.033, lng2: 121.565,
			want:      0,
			tolerance: 0.001,
		},
		{
			name: "one degree of latitude (~111km)",
			lat1: 25.0, lng1: 121.0,
			lat2: 26.0, lng2: 121.0,
			want:      111195,
			tolerance: 200,
		},
		{
			name: "Taipei 101 to Taipei Main Station (~5km)",
			lat1: 25.0340, lng1: 121.5645,
			lat2: 25.0478, lng2: 121.5170,
			want:      5050,
			tolerance: 300,
		},
		{
			name: "New York to Los Angeles (~3936km)",
			lat1: 40.7128, lng1: -74.0060,
			lat2: 34.0522, lng2: -118.2437,
			want:      3936000,
			tolerance: 50000,
		},
		{
			name: "block-distance scale: ~30m apart",
			lat1: 25.033000, lng1: 121.565000,
			lat2: 25.033270, lng2: 121.565000,
			want:      30,
			tolerance: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := types.Position{Lat: tt.lat1, Lng: tt.lng1}
			b := types.Position{Lat: tt.lat2, Lng: tt.lng2}
			got := DistanceMeters(a, b)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("DistanceMeters() = %f, want %f (±%f)", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestDistanceMeters_Symmetry(t *testing.T) {
	a := types.Position{Lat: 25.0, Lng: 121.0}
	b := types.Position{Lat: 26.0, Lng: 122.0}
	d1 := DistanceMeters(a, b)
	d2 := DistanceMeters(b, a)
	if math.Abs(d1-d2) > 0.0001 {
		t.Errorf("distance is not symmetric: %f vs %f", d1, d2)
	}
}

func TestDistanceMeters_Identity(t *testing.T) {
	p := types.Position{Lat: -33.8688, Lng: 151.2093}
	if d := DistanceMeters(p, p); d != 0 {
		t.Errorf("DistanceMeters(p, p) = %f, want 0", d)
	}
}
