package geocode

import (
	"context"
	"time"
)

// Coordinates is a geocoding result.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Geocoder resolves a postal address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (Coordinates, error)
}

// MockGeocoder stands in for a real geocoding provider: it returns fixed
// Sydney coordinates after a simulated provider latency. The latency makes
// the asynchronous population of coordinates observable end to end.
type MockGeocoder struct {
	Latency time.Duration
}

// NewMockGeocoder creates a mock geocoder with the given simulated latency.
func NewMockGeocoder(latency time.Duration) *MockGeocoder {
	return &MockGeocoder{Latency: latency}
}

// Geocode waits out the simulated latency, then returns Sydney.
func (g *MockGeocoder) Geocode(ctx context.Context, address string) (Coordinates, error) {
	if g.Latency > 0 {
		timer := time.NewTimer(g.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Coordinates{}, ctx.Err()
		case <-timer.C:
		}
	}
	return Coordinates{Latitude: -33.8688, Longitude: 151.2093}, nil
}
