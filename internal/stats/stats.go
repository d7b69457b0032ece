// Package stats holds the pipeline counters served by the monitor bridge.
package stats

import "sync/atomic"

// Counters are cumulative since stream start. The producer goroutine writes
// them; any goroutine may snapshot.
type Counters struct {
	BytesIn             atomic.Int64
	PolarityEvents      atomic.Int64
	SpecialEvents       atomic.Int64
	IMUEvents           atomic.Int64
	ContainersDelivered atomic.Int64
	ContainersDropped   atomic.Int64
}

type Snapshot struct {
	BytesIn             int64 `json:"bytes_in"`
	PolarityEvents      int64 `json:"polarity_events"`
	SpecialEvents       int64 `json:"special_events"`
	IMUEvents           int64 `json:"imu_events"`
	ContainersDelivered int64 `json:"containers_delivered"`
	ContainersDropped   int64 `json:"containers_dropped"`
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		BytesIn:             c.BytesIn.Load(),
		PolarityEvents:      c.PolarityEvents.Load(),
		SpecialEvents:       c.SpecialEvents.Load(),
		IMUEvents:           c.IMUEvents.Load(),
		ContainersDelivered: c.ContainersDelivered.Load(),
		ContainersDropped:   c.ContainersDropped.Load(),
	}
}
