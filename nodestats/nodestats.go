// Package nodestats collects basic process health for inclusion in a
// stats reply: uptime, CPU, RSS, thread count. It is role-agnostic — both
// a source and a receiver embed the same NodeStats block.
package nodestats

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"github.com/syncwave/syncwave/proto"
)

var startTime = time.Now()

// Collector caches the process handle so repeated Collect calls don't
// re-resolve the PID.
type Collector struct {
	proc *process.Process
}

// NewCollector returns a Collector bound to the current process.
func NewCollector() (*Collector, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Collector{proc: proc}, nil
}

// Collect gathers current process stats into the fixed-layout wire
// struct. Any single metric gopsutil fails to read is left at its zero
// value rather than aborting the whole collection.
func (c *Collector) Collect() proto.NodeStats {
	stats := proto.NodeStats{
		UptimeSeconds: uint64(time.Since(startTime).Seconds()),
		PID:           uint32(os.Getpid()),
	}

	if pct, err := c.proc.Percent(0); err == nil {
		stats.CPUPermil = uint32(pct * 10)
	}
	if mem, err := c.proc.MemoryInfo(); err == nil {
		stats.RSSBytes = mem.RSS
	}
	if n, err := c.proc.NumThreads(); err == nil {
		stats.NumThreads = uint32(n)
	}

	return stats
}
