// Package cluster runs a partitioned device graph on a pool of worker
// goroutines.
//
// Each DeviceCluster is stepped by exactly one worker at a time. A step
// runs any pending hardware idle, drains the cluster's inbox, lets every
// active device send or compute once, and flushes outbound bundles when
// there is nothing else to do. After each step the worker reports to the
// IdleDetector, which decides when the whole graph is quiescent.
package cluster

import (
	"fmt"
	"sync/atomic"

	"github.com/bits-and-blooms/bitset"

	"github.com/poets-sim/poems/sim"
	"github.com/poets-sim/poems/sim/transport"
)

// ClusterStats holds per-cluster step counters. Written only by the
// goroutine stepping the cluster.
type ClusterStats struct {
	NonLocalSent     uint64
	NonLocalReceived uint64
	LocalMessages    uint64 // sent and received inside the cluster
	Steps            uint64
	NoSendSteps      uint64
	NoActivitySteps  uint64
	ThrottledSteps   uint64
	FlushedBundles   uint64
	HardwareIdles    uint64
}

// StepResult summarizes one cluster step for idle detection.
type StepResult struct {
	Sent     int // non-local messages sent
	Received int // non-local messages received
	Local    int // messages delivered inside the cluster
	// Busy is true if any handler ran with effect, a hardware idle ran, or
	// the cluster is still active.
	Busy bool
}

// DeviceCluster is a group of devices stepped together.
type DeviceCluster struct {
	ID      int
	devices []*sim.Device
	active  *bitset.BitSet
	inbox   transport.Inbox
	outbox  *transport.Outbox

	// isActive is true if any device is active, a bundle is pending, or
	// sends were throttled on the last step.
	isActive            bool
	hardwareIdlePending bool
	// woke is true if the last hardware idle pass left any device active.
	woke bool

	owner atomic.Int64 // worker id + 1 while being stepped, when checked
	stats ClusterStats
}

func newDeviceCluster(id int, devices []*sim.Device) *DeviceCluster {
	return &DeviceCluster{
		ID:       id,
		devices:  devices,
		active:   bitset.New(uint(len(devices))),
		isActive: true,
	}
}

// Devices returns the cluster's devices ordered by slot.
func (c *DeviceCluster) Devices() []*sim.Device { return c.devices }

// Stats returns a copy of the step counters. Only safe once the cluster is
// no longer being stepped.
func (c *DeviceCluster) Stats() ClusterStats { return c.stats }

// ActiveDevices returns the number of devices currently marked active.
func (c *DeviceCluster) ActiveDevices() int { return int(c.active.Count()) }

func (c *DeviceCluster) setActive(slot int, active bool) {
	c.active.SetTo(uint(slot), active)
}

// claim marks the cluster as owned by worker w, panicking if another
// worker holds it.
func (c *DeviceCluster) claim(w int) {
	if !c.owner.CompareAndSwap(0, int64(w)+1) {
		panic(fmt.Sprintf("cluster %d: stepped by worker %d while owned by worker %d", c.ID, w, c.owner.Load()-1))
	}
}

func (c *DeviceCluster) release() { c.owner.Store(0) }

// step advances the cluster once on behalf of worker w.
func (c *DeviceCluster) step(w *worker, throttled bool) StepResult {
	if w.checkOwnership {
		c.claim(w.id)
		defer c.release()
	}
	ranIdle := c.hardwareIdlePending
	if ranIdle {
		c.runHardwareIdle(w)
	}

	received := c.drain(w)

	sent, local := 0, 0
	if throttled {
		// Receives continue while throttled; pending bundles must go out
		// or the in-flight count can never fall.
		c.stats.ThrottledSteps++
		c.stats.FlushedBundles += uint64(c.outbox.FlushAll())
	} else if c.isActive || received > 0 {
		for i, ok := c.active.NextSet(0); ok; i, ok = c.active.NextSet(i + 1) {
			s, l := c.trySend(w, int(i))
			sent += s
			local += l
		}
	}

	if sent == 0 && local == 0 {
		c.stats.NoSendSteps++
		if received == 0 {
			c.stats.NoActivitySteps++
			if c.outbox.FlushOne() {
				c.stats.FlushedBundles++
			}
		}
	}

	c.isActive = c.active.Any() || c.outbox.Pending() > 0 || throttled
	c.stats.NonLocalSent += uint64(sent)
	c.stats.NonLocalReceived += uint64(received)
	c.stats.LocalMessages += uint64(local)
	c.stats.Steps++

	return StepResult{
		Sent:     sent,
		Received: received,
		Local:    local,
		Busy:     ranIdle || c.isActive || sent > 0 || local > 0 || received > 0,
	}
}

// runHardwareIdle calls the hardware idle handler of every device. Every
// device must be inactive: the cluster was verified idle.
func (c *DeviceCluster) runHardwareIdle(w *worker) {
	c.woke = false
	for slot, d := range c.devices {
		if c.active.Test(uint(slot)) {
			panic(fmt.Sprintf("cluster %d: device %s active at hardware idle", c.ID, d.ID))
		}
		t := w.types[d.TypeIndex]
		if !t.Info().HasHardwareIdle {
			continue
		}
		if t.HardwareIdle(w.env, d.View) {
			c.setActive(slot, true)
			c.woke = true
		}
	}
	c.hardwareIdlePending = false
	c.stats.HardwareIdles++
}

// drain pops every bundle from the inbox and delivers its messages.
func (c *DeviceCluster) drain(w *worker) int {
	n := 0
	for b := c.inbox.PopAll(); b != nil; {
		for i := 0; i < b.Len(); i++ {
			e, msg := b.At(i)
			if e.DestCluster != c.ID {
				panic(fmt.Sprintf("cluster %d: received message for cluster %d", c.ID, e.DestCluster))
			}
			d := e.Dest
			c.setActive(d.Slot, w.types[d.TypeIndex].Recv(w.env, e.Pin, d.View, e.View, msg))
		}
		n += b.Len()
		next := b.Next()
		w.pool.Put(b)
		b = next
	}
	return n
}

// trySend gives the device in slot one send-or-compute opportunity and
// delivers any message it produces. Returns non-local and local counts.
func (c *DeviceCluster) trySend(w *worker, slot int) (sent, local int) {
	d := c.devices[slot]
	t := w.types[d.TypeIndex]
	res := t.TrySendOrCompute(w.env, d.View, w.scratch)
	c.setActive(slot, res.Active)
	if res.OutputPort < 0 {
		return 0, 0
	}
	if res.OutputPort >= len(d.Outputs) || res.Size < 0 || res.Size > len(w.scratch) {
		panic(fmt.Sprintf("device %s: invalid send (port %d, size %d)", d.ID, res.OutputPort, res.Size))
	}
	edges := d.Outputs[res.OutputPort].Edges
	if res.SendIndex >= 0 {
		if res.SendIndex >= len(edges) {
			panic(fmt.Sprintf("device %s: send index %d on port with %d edges", d.ID, res.SendIndex, len(edges)))
		}
		edges = edges[res.SendIndex : res.SendIndex+1]
	}
	msg := w.scratch[:res.Size]
	for i := range edges {
		e := &edges[i]
		if e.Local {
			dest := e.Dest
			c.setActive(dest.Slot, w.types[dest.TypeIndex].Recv(w.env, e.Pin, dest.View, e.View, msg))
			local++
		} else {
			c.outbox.Send(w.pool, e.DestCluster, e, msg)
			sent++
		}
	}
	return sent, local
}
