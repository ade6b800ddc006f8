package cluster

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/poets-sim/poems/sim"
	"github.com/poets-sim/poems/sim/partition"
	"github.com/poets-sim/poems/sim/trace"
	"github.com/poets-sim/poems/sim/transport"
)

// Engine runs one topology to completion.
type Engine struct {
	runID    xid.ID
	topo     *sim.Topology
	env      *sim.Env
	types    []sim.DeviceType
	cfg      sim.EngineConfig
	clusters []*DeviceCluster
	threads  int
	pinned   bool // one cluster per worker, no shared queue
	queue    chan *DeviceCluster
	pool     *transport.SharedPool[transport.Bundle]
	// bundleBytes is the footprint of one pooled bundle.
	bundleBytes int
	idle        *IdleDetector
	trace       *trace.IdleTrace
	start       time.Time
	started     atomic.Bool
	began       atomic.Bool // set once start is written

	declarations atomic.Int64
	// Written only under the idle barrier.
	lastTotal    uint64
	unproductive int
}

// NewEngine assigns topo to clusters (unless it is already frozen), lays
// out the per-cluster transport, and initializes every device.
func NewEngine(topo *sim.Topology, cfg sim.EngineConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if !topo.Frozen() {
		rng := sim.NewPartitionedRNG(sim.NewRunKey(cfg.Cluster.Seed))
		parts, k, err := partition.Assign(topo, cfg.Cluster, rng)
		if err != nil {
			return nil, fmt.Errorf("assigning clusters: %w", err)
		}
		if err := topo.ApplyAssignment(parts, k); err != nil {
			return nil, fmt.Errorf("assigning clusters: %w", err)
		}
	}

	e := &Engine{
		runID: xid.New(),
		topo:  topo,
		env:   topo.Env,
		types: topo.Provider.Types(),
		cfg:   cfg,
	}

	k := topo.ClusterCount()
	e.clusters = make([]*DeviceCluster, k)
	inboxes := make([]*transport.Inbox, k)
	for c := range e.clusters {
		e.clusters[c] = newDeviceCluster(c, topo.Members(c))
		inboxes[c] = &e.clusters[c].inbox
	}
	for _, c := range e.clusters {
		c.outbox = transport.NewOutbox(inboxes)
		for slot, d := range c.devices {
			t := e.types[d.TypeIndex]
			t.Init(e.env, d.View)
			_, _, active := t.CalcReadyToSend(e.env, d.View)
			c.setActive(slot, active)
		}
	}

	// More workers than GOMAXPROCS is allowed; idle workers yield.
	threads := cfg.Threads
	if threads == 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	e.threads = min(threads, k)
	e.pinned = e.threads == k
	if !e.pinned {
		e.queue = make(chan *DeviceCluster, k)
	}

	capacity, stride := cfg.Transport.BundleCapacity, topo.Provider.MaxMessageSize()
	e.pool = transport.NewSharedPool(cfg.Transport.Pool.SharedMax, func() *transport.Bundle {
		return transport.NewBundle(capacity, stride)
	})
	e.bundleBytes = transport.NewBundle(capacity, stride).Bytes()
	e.idle = NewIdleDetector(e.threads, uint64(cfg.Idle.ThresholdFactor*k), e.verifyIdle)
	if cfg.TraceLevel.Enabled() {
		e.trace = trace.NewIdleTrace(cfg.TraceLevel)
	}

	local, nonLocal := topo.Locality()
	logrus.WithFields(logrus.Fields{
		"run":      e.runID.String(),
		"devices":  len(topo.Devices),
		"clusters": k,
		"threads":  e.threads,
		"pinned":   e.pinned,
	}).Infof("engine built: %d local and %d non-local edges", local, nonLocal)
	return e, nil
}

// RunID returns the unique id of this engine's run.
func (e *Engine) RunID() string { return e.runID.String() }

// Threads returns the number of worker goroutines Run will start.
func (e *Engine) Threads() int { return e.threads }

// Clusters returns the engine's clusters indexed by id.
func (e *Engine) Clusters() []*DeviceCluster { return e.clusters }

// Pinned reports whether each worker owns one cluster permanently.
func (e *Engine) Pinned() bool { return e.pinned }

// Run steps the graph until a handler requests exit, the idle watchdog
// fires, or ctx is cancelled. The returned result is always non-nil.
// Panics if called more than once.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	if !e.started.CompareAndSwap(false, true) {
		panic("cluster: Engine.Run called more than once")
	}
	e.start = time.Now()
	e.began.Store(true)
	if !e.pinned {
		for _, c := range e.clusters {
			e.queue <- c
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	go func() {
		<-gctx.Done()
		e.idle.Stop()
	}()
	for i := 0; i < e.threads; i++ {
		w := e.newWorker(i)
		g.Go(func() error { return e.runWorker(w) })
	}
	stopProgress := e.startProgress()
	err := g.Wait()
	stopProgress()

	res := e.result()
	if err != nil {
		return res, err
	}
	if !res.ExitRequested && ctx.Err() != nil {
		return res, ctx.Err()
	}
	return res, nil
}

// worker is the per-goroutine step context.
type worker struct {
	id             int
	env            *sim.Env
	types          []sim.DeviceType
	pool           *transport.BundlePool
	scratch        []byte
	checkOwnership bool
}

func (e *Engine) newWorker(id int) *worker {
	p := e.cfg.Transport.Pool
	return &worker{
		id:             id,
		env:            e.env,
		types:          e.types,
		pool:           e.pool.NewLocalPool(p.LocalHighWater, p.RefillBatch, p.ShedBatch, (*transport.Bundle).Reset),
		scratch:        make([]byte, e.topo.Provider.MaxMessageSize()),
		checkOwnership: e.cfg.CheckOwnership,
	}
}

func (e *Engine) runWorker(w *worker) error {
	log := logrus.WithField("worker", w.id)
	log.Debug("worker starting")
	defer e.idle.Stop()
	defer w.pool.Flush()

	maxInFlight := e.cfg.Transport.MaxInFlight
	steps := 0
	for {
		if e.idle.Stopped() {
			break
		}
		if _, ok := e.env.ExitRequested(); ok {
			break
		}
		var c *DeviceCluster
		if e.pinned {
			c = e.clusters[w.id]
		} else {
			c = <-e.queue
		}
		throttled := maxInFlight > 0 && e.idle.InFlight() > maxInFlight
		res := c.step(w, throttled)
		if !e.pinned {
			e.queue <- c
		}
		steps++
		if err := e.idle.Report(res.Sent, res.Received, res.Busy); err != nil {
			log.WithError(err).Error("worker stopping")
			return err
		}
		if res.Sent == 0 && res.Received == 0 && res.Local == 0 {
			// Nothing moved; let workers sharing this P deliver.
			runtime.Gosched()
		}
	}
	log.Debugf("worker exiting after %d steps", steps)
	return nil
}

// verifyIdle runs under the idle barrier with every worker parked.
func (e *Engine) verifyIdle(sent, received uint64) error {
	if _, ok := e.env.ExitRequested(); ok {
		return nil
	}
	rec := trace.IdleRecord{
		Elapsed:  time.Since(e.start),
		Sent:     sent,
		Received: received,
	}
	if sent != received {
		rec.Outcome = trace.OutcomeRejectedInFlight
		e.trace.Record(rec)
		logrus.Debugf("idle rejected: %d non-local messages in flight", int64(sent)-int64(received))
		return nil
	}

	var local uint64
	for _, c := range e.clusters {
		if c.isActive {
			rec.ActiveClusters++
		}
		local += c.stats.LocalMessages
	}
	rec.TotalMessages = sent + local
	if rec.ActiveClusters > 0 {
		rec.Outcome = trace.OutcomeRejectedActive
		e.trace.Record(rec)
		logrus.Debugf("idle rejected: %d clusters active", rec.ActiveClusters)
		return nil
	}

	declared := e.declarations.Load() > 0
	stimulated := !declared || rec.TotalMessages != e.lastTotal
	for _, c := range e.clusters {
		stimulated = stimulated || c.woke
	}
	if declared && rec.TotalMessages == e.lastTotal {
		e.unproductive++
	} else {
		e.unproductive = 0
	}
	e.lastTotal = rec.TotalMessages
	if e.unproductive > e.cfg.Idle.MaxUnproductiveIdles {
		rec.Outcome = trace.OutcomeUnproductive
		e.trace.Record(rec)
		return fmt.Errorf("%w: %d consecutive idles at %d messages", ErrIdleWatchdog, e.unproductive, rec.TotalMessages)
	}
	// Hardware idle already ran at this quiescent point and woke nothing.
	if !stimulated {
		rec.Outcome = trace.OutcomeQuiescent
		e.trace.Record(rec)
		logrus.Debugf("idle unchanged since declaration %d", e.declarations.Load())
		return nil
	}

	for _, c := range e.clusters {
		c.hardwareIdlePending = true
		c.isActive = true
		c.woke = false
	}
	n := e.declarations.Add(1)
	rec.Outcome = trace.OutcomeDeclared
	e.trace.Record(rec)
	logrus.Infof("idle %d: non-local=%d, local=%d", n, sent, local)
	return nil
}

func (e *Engine) result() *RunResult {
	code, requested := e.env.ExitRequested()
	sent, received := e.idle.Totals()
	local, nonLocal := e.topo.Locality()
	res := &RunResult{
		RunID:            e.runID.String(),
		ExitCode:         code,
		ExitRequested:    requested,
		Elapsed:          time.Since(e.start),
		Threads:          e.threads,
		Clusters:         len(e.clusters),
		Pinned:           e.pinned,
		Devices:          len(e.topo.Devices),
		LocalEdges:       local,
		NonLocalEdges:    nonLocal,
		NonLocalSent:     sent,
		NonLocalReceived: received,
		IdleDeclarations: e.declarations.Load(),
		Verifications:    e.idle.Verifications(),
		PerCluster:       make([]ClusterStats, len(e.clusters)),
		Trace:            e.trace,
	}
	steps := make([]float64, len(e.clusters))
	for i, c := range e.clusters {
		res.PerCluster[i] = c.stats
		res.LocalMessages += c.stats.LocalMessages
		steps[i] = float64(c.stats.Steps)
	}
	res.StepsPerCluster = NewDistribution(steps)
	return res
}
