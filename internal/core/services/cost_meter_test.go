package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCostMeter(t *testing.T) {
	meter := NewCostMeter(30, 2, 0.25)

	assert.Equal(t, int64(60), meter.Estimate())

	tests := []struct {
		name       string
		broadcast  time.Duration
		viewerTime time.Duration
		want       int64
	}{
		{"nothing elapsed", 0, 0, 0},
		{"whole minutes", 10 * time.Minute, 0, 20},
		{"partial credit rounds up", 30 * time.Second, 0, 1},
		{"viewer time", 10 * time.Minute, 40 * time.Minute, 30},
		{"negative clamps to zero", -time.Minute, -time.Minute, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, meter.Actual(tt.broadcast, tt.viewerTime))
		})
	}
}
