package engine

import (
	"context"
	"errors"
	"testing"

	"pinshadow/bus"
)

func TestProbeActivity(t *testing.T) {
	cfg := ProbeConfig{Samples: 1000, MaxTransitions: 4000}
	tests := []struct {
		name    string
		noise   bool
		wantErr error
	}{
		{"quiet bus passes", false, nil},
		{"contention is caught", true, ErrBusContention},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := bus.NewHost(bus.HostConfig{Geometry: testGeometry, Windows: testWindows})
			host.SetNoise(tt.noise)

			n, err := ProbeActivity(context.Background(), host, cfg)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ProbeActivity() = %d, %v; want error %v", n, err, tt.wantErr)
			}
		})
	}
}
