package cluster

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Progress is a point-in-time view of a running engine built only from
// values that are safe to read concurrently.
type Progress struct {
	Elapsed          time.Duration
	NonLocalSent     uint64
	NonLocalReceived uint64
	InFlight         int64
	IdleDeclarations int64
	Verifications    int64
	// BundlesAllocated counts live bundles: created by the shared pool and
	// not yet released, whether in use or free.
	BundlesAllocated int64
	BundleBytes      int64
}

// Snapshot returns the engine's current progress. Safe to call from any
// goroutine while Run is in progress.
func (e *Engine) Snapshot() Progress {
	sent, received := e.idle.Totals()
	n := e.pool.Allocated()
	var elapsed time.Duration
	if e.began.Load() {
		elapsed = time.Since(e.start)
	}
	return Progress{
		Elapsed:          elapsed,
		NonLocalSent:     sent,
		NonLocalReceived: received,
		InFlight:         int64(sent) - int64(received),
		IdleDeclarations: e.declarations.Load(),
		Verifications:    e.idle.Verifications(),
		BundlesAllocated: n,
		BundleBytes:      n * int64(e.bundleBytes),
	}
}

// startProgress logs a progress line every ProgressInterval until the
// returned function is called. A zero interval disables it.
func (e *Engine) startProgress() (stop func()) {
	interval := e.cfg.ProgressInterval
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		last := e.Snapshot()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				p := e.Snapshot()
				dt := (p.Elapsed - last.Elapsed).Seconds()
				rate := 0.0
				if dt > 0 {
					rate = float64(p.NonLocalReceived-last.NonLocalReceived) / dt
				}
				logrus.WithFields(logrus.Fields{
					"elapsed":           p.Elapsed.Round(time.Millisecond).String(),
					"in_flight":         p.InFlight,
					"recv_per_sec":      int64(rate),
					"pool_kib":          p.BundleBytes / 1024,
					"idle_declarations": p.IdleDeclarations,
				}).Info("progress")
				last = p
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}
