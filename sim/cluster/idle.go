package cluster

import (
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// ErrIdleWatchdog is returned when the graph keeps going idle without
// exchanging any messages in between.
var ErrIdleWatchdog = errors.New("idle watchdog: repeated idle with no messages")

// VerifyFunc is called by the last worker to enter the idle barrier, with
// every other worker parked. sent and received are exact at that point.
// A non-nil error stops the run.
type VerifyFunc func(sent, received uint64) error

// IdleDetector coordinates global quiescence detection.
//
// Every step is reported through Report. Inactive steps bump a shared
// counter; once it passes the threshold and the non-local sent and
// received totals agree, idleness is likely and the worker enters a
// barrier. The last of the workers to arrive runs the VerifyFunc, then
// releases everyone. Any busy step resets the counter and releases
// waiting workers.
type IdleDetector struct {
	_        cpu.CacheLinePad
	sent     atomic.Uint64
	received atomic.Uint64
	inactive atomic.Uint64
	waiting  atomic.Int32
	stopped  atomic.Bool
	_        cpu.CacheLinePad

	threshold uint64
	workers   int32
	verify    VerifyFunc

	mu    sync.Mutex
	cond  *sync.Cond
	epoch uint64 // bumped on every release, guarded by mu

	verifications atomic.Int64
}

// NewIdleDetector creates a detector for the given number of workers. The
// heuristic phase starts once threshold consecutive inactive steps have
// been reported.
func NewIdleDetector(workers int, threshold uint64, verify VerifyFunc) *IdleDetector {
	if workers < 1 {
		panic("cluster: idle detector needs at least one worker")
	}
	d := &IdleDetector{
		threshold: threshold,
		workers:   int32(workers),
		verify:    verify,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Report records one cluster step. It may block in the idle barrier, and
// returns the VerifyFunc's error if this worker ran verification.
func (d *IdleDetector) Report(sent, received int, busy bool) error {
	if sent > 0 {
		d.sent.Add(uint64(sent))
	}
	if received > 0 {
		d.received.Add(uint64(received))
	}

	if busy {
		if d.inactive.Load() != 0 {
			d.inactive.Store(0)
		}
		if d.waiting.Load() > 0 {
			d.release()
		}
		return nil
	}

	if d.inactive.Add(1)-1 < d.threshold {
		return nil
	}
	// Possibly inconsistent snapshot; only the barrier's view is exact.
	if d.sent.Load() != d.received.Load() {
		return nil
	}
	return d.barrier()
}

func (d *IdleDetector) barrier() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped.Load() {
		return nil
	}
	n := d.waiting.Add(1)
	defer d.waiting.Add(-1)

	if n < d.workers {
		if d.inactive.Load() < d.threshold {
			return nil
		}
		epoch := d.epoch
		for epoch == d.epoch && !d.stopped.Load() {
			d.cond.Wait()
		}
		return nil
	}

	d.verifications.Add(1)
	err := d.verify(d.sent.Load(), d.received.Load())
	d.inactive.Store(0)
	d.epoch++
	d.cond.Broadcast()
	return err
}

func (d *IdleDetector) release() {
	d.mu.Lock()
	d.epoch++
	d.cond.Broadcast()
	d.mu.Unlock()
}

// Stop releases every waiting worker and keeps new ones from waiting.
func (d *IdleDetector) Stop() {
	d.stopped.Store(true)
	d.release()
}

// Stopped reports whether Stop has been called.
func (d *IdleDetector) Stopped() bool { return d.stopped.Load() }

// InFlight returns non-local messages sent but not yet received. May be
// briefly negative while a receiver reports before its sender.
func (d *IdleDetector) InFlight() int64 {
	return int64(d.sent.Load()) - int64(d.received.Load())
}

// Totals returns the non-local sent and received counts.
func (d *IdleDetector) Totals() (sent, received uint64) {
	return d.sent.Load(), d.received.Load()
}

// Verifications returns how many times the barrier ran verification.
func (d *IdleDetector) Verifications() int64 { return d.verifications.Load() }
