// Package metrics keeps process-wide execution counters.
//
// These are request counters only. Nothing here measures CPU, memory or disk
// usage of the executed scripts.
package metrics

import (
	"sync/atomic"
)

// Counters is safe for concurrent use. A nil *Counters ignores all updates,
// so components can be built without metrics in tests.
type Counters struct {
	requests       atomic.Uint64
	completed      atomic.Uint64
	nonZeroExits   atomic.Uint64
	timeouts       atomic.Uint64
	launchFailures atomic.Uint64
	harvestErrors  atomic.Uint64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Requests       uint64 `json:"requests"`
	Completed      uint64 `json:"completed"`
	NonZeroExits   uint64 `json:"non_zero_exits"`
	Timeouts       uint64 `json:"timeouts"`
	LaunchFailures uint64 `json:"launch_failures"`
	HarvestErrors  uint64 `json:"harvest_errors"`
}

func New() *Counters {
	return &Counters{}
}

func (c *Counters) IncRequest() {
	if c != nil {
		c.requests.Add(1)
	}
}

// IncCompleted counts a run that finished on its own. nonZero marks runs whose
// script reported failure through its exit code.
func (c *Counters) IncCompleted(nonZero bool) {
	if c == nil {
		return
	}
	c.completed.Add(1)
	if nonZero {
		c.nonZeroExits.Add(1)
	}
}

func (c *Counters) IncTimeout() {
	if c != nil {
		c.timeouts.Add(1)
	}
}

func (c *Counters) IncLaunchFailure() {
	if c != nil {
		c.launchFailures.Add(1)
	}
}

func (c *Counters) IncHarvestError() {
	if c != nil {
		c.harvestErrors.Add(1)
	}
}

func (c *Counters) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	return Snapshot{
		Requests:       c.requests.Load(),
		Completed:      c.completed.Load(),
		NonZeroExits:   c.nonZeroExits.Load(),
		Timeouts:       c.timeouts.Load(),
		LaunchFailures: c.launchFailures.Load(),
		HarvestErrors:  c.harvestErrors.Load(),
	}
}
