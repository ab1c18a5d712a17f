package services

import (
	"math"
	"time"
)

// CostMeter converts broadcast and viewer time into ledger credits.
type CostMeter struct {
	EstimateMinutes        float64
	BroadcastRatePerMinute float64
	ViewerRatePerMinute    float64
}

func NewCostMeter(estimateMinutes, broadcastRate, viewerRate float64) CostMeter {
	return CostMeter{
		EstimateMinutes:        estimateMinutes,
		BroadcastRatePerMinute: broadcastRate,
		ViewerRatePerMinute:    viewerRate,
	}
}

// Estimate is the amount reserved when a broadcast starts.
func (m CostMeter) Estimate() int64 {
	return int64(math.Ceil(m.EstimateMinutes * m.BroadcastRatePerMinute))
}

// Actual is the amount charged for a finished broadcast. Partial credits
// round up.
func (m CostMeter) Actual(broadcast, viewerTime time.Duration) int64 {
	if broadcast < 0 {
		broadcast = 0
	}
	if viewerTime < 0 {
		viewerTime = 0
	}
	amount := broadcast.Minutes()*m.BroadcastRatePerMinute + viewerTime.Minutes()*m.ViewerRatePerMinute
	return int64(math.Ceil(amount))
}
