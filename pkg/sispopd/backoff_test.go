package sispopd

import (
	"testing"
	"time"
)

func TestBackoff_NextDelay(t *testing.T) {
	b := Backoff{BaseDelay: time.Second, MaxDelay: 30 * time.Second}

	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tt := range tests {
		for i := 0; i < 20; i++ {
			got := b.NextDelay(tt.attempt)
			lo := time.Duration(float64(tt.base) * 0.9)
			hi := time.Duration(float64(tt.base) * 1.1)
			if got < lo || got > hi {
				t.Fatalf("NextDelay(%d) = %v, want within [%v, %v]", tt.attempt, got, lo, hi)
			}
		}
	}
}
