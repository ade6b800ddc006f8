// Package testutil provides device types and graph helpers shared by the
// sim/ and sim/cluster/ test packages.
package testutil

import (
	"sync"
	"sync/atomic"

	"github.com/poets-sim/poems/sim"
)

// GraphTypeID is the graph type of every test graph.
const GraphTypeID = "testutil"

// MessageSize is the payload size of every test message: one uint32.
const MessageSize = 4

// Source sends Count sequence-numbered messages on its only port, then
// goes idle. Properties: count u32. State: sent u32.
type Source struct{}

func (Source) Info() *sim.DeviceTypeInfo {
	return &sim.DeviceTypeInfo{
		ID:             "source",
		PropertiesSize: 4,
		StateSize:      4,
		Outputs:        []sim.OutputPinInfo{{Name: "out", MessageSize: MessageSize}},
	}
}

func (Source) Init(*sim.Env, sim.View) {}

func (Source) CalcReadyToSend(_ *sim.Env, dev sim.View) (uint32, bool, bool) {
	if dev.State().Uint32(0) < dev.Properties().Uint32(0) {
		return 1, false, true
	}
	return 0, false, false
}

func (Source) TrySendOrCompute(_ *sim.Env, dev sim.View, msg []byte) sim.SendResult {
	sent, count := dev.State().Uint32(0), dev.Properties().Uint32(0)
	if sent >= count {
		return sim.NoSend
	}
	sim.Bytes(msg).PutUint32(0, sent)
	sent++
	dev.State().PutUint32(0, sent)
	return sim.SendResult{Action: sim.ActionSend, OutputPort: 0, Size: MessageSize, SendIndex: -1, Active: sent < count}
}

func (Source) Recv(*sim.Env, int, sim.View, sim.View, []byte) bool { return false }
func (Source) HardwareIdle(*sim.Env, sim.View) bool                { return false }

// Sink counts what it receives and how many hardware idles it has seen.
// State: received u32, idles u32, last u32.
type Sink struct {
	// ExitOnIdle requests exit with code 0 on the first hardware idle.
	ExitOnIdle bool
}

func (Sink) Info() *sim.DeviceTypeInfo {
	return &sim.DeviceTypeInfo{
		ID:              "sink",
		StateSize:       12,
		Inputs:          []sim.InputPinInfo{{Name: "in", MessageSize: MessageSize}},
		HasHardwareIdle: true,
	}
}

func (Sink) Init(*sim.Env, sim.View) {}

func (Sink) CalcReadyToSend(*sim.Env, sim.View) (uint32, bool, bool) { return 0, false, false }

func (Sink) TrySendOrCompute(*sim.Env, sim.View, []byte) sim.SendResult { return sim.NoSend }

func (Sink) Recv(_ *sim.Env, _ int, dev sim.View, _ sim.View, msg []byte) bool {
	s := dev.State()
	s.PutUint32(0, s.Uint32(0)+1)
	s.PutUint32(8, sim.Bytes(msg).Uint32(0))
	return false
}

func (k Sink) HardwareIdle(env *sim.Env, dev sim.View) bool {
	s := dev.State()
	s.PutUint32(4, s.Uint32(4)+1)
	if k.ExitOnIdle {
		env.Exit(0)
	}
	return false
}

// SinkReceived returns how many messages a Sink has received.
func SinkReceived(d *sim.Device) uint32 { return d.View.State().Uint32(0) }

// SinkIdles returns how many hardware idles a Sink has run.
func SinkIdles(d *sim.Device) uint32 { return d.View.State().Uint32(4) }

// IndexedSource sends one message per send index 0..count-1 on an
// indexed port, carrying the index. Properties: count u32. State: next u32.
type IndexedSource struct{}

func (IndexedSource) Info() *sim.DeviceTypeInfo {
	return &sim.DeviceTypeInfo{
		ID:             "indexed_source",
		PropertiesSize: 4,
		StateSize:      4,
		Outputs:        []sim.OutputPinInfo{{Name: "out", MessageSize: MessageSize, Indexed: true}},
	}
}

func (IndexedSource) Init(*sim.Env, sim.View) {}

func (IndexedSource) CalcReadyToSend(_ *sim.Env, dev sim.View) (uint32, bool, bool) {
	if dev.State().Uint32(0) < dev.Properties().Uint32(0) {
		return 1, false, true
	}
	return 0, false, false
}

func (IndexedSource) TrySendOrCompute(_ *sim.Env, dev sim.View, msg []byte) sim.SendResult {
	next, count := dev.State().Uint32(0), dev.Properties().Uint32(0)
	if next >= count {
		return sim.NoSend
	}
	sim.Bytes(msg).PutUint32(0, next)
	dev.State().PutUint32(0, next+1)
	return sim.SendResult{Action: sim.ActionSend, OutputPort: 0, Size: MessageSize, SendIndex: int(next), Active: next+1 < count}
}

func (IndexedSource) Recv(*sim.Env, int, sim.View, sim.View, []byte) bool { return false }
func (IndexedSource) HardwareIdle(*sim.Env, sim.View) bool                { return false }

// CollectorSlots is the number of arrivals a Collector records.
const CollectorSlots = 8

// Collector records the tag of the edge each message arrived on, in
// arrival order. Edge properties: tag u32. State: n u32, tags[8] u32.
type Collector struct{}

func (Collector) Info() *sim.DeviceTypeInfo {
	return &sim.DeviceTypeInfo{
		ID:        "collector",
		StateSize: 4 + 4*CollectorSlots,
		Inputs:    []sim.InputPinInfo{{Name: "in", MessageSize: MessageSize, PropertiesSize: 4}},
	}
}

func (Collector) Init(*sim.Env, sim.View) {}

func (Collector) CalcReadyToSend(*sim.Env, sim.View) (uint32, bool, bool) { return 0, false, false }

func (Collector) TrySendOrCompute(*sim.Env, sim.View, []byte) sim.SendResult { return sim.NoSend }

func (Collector) Recv(_ *sim.Env, _ int, dev sim.View, edge sim.View, _ []byte) bool {
	s := dev.State()
	n := s.Uint32(0)
	if n < CollectorSlots {
		s.PutUint32(4+4*int(n), edge.Properties().Uint32(0))
	}
	s.PutUint32(0, n+1)
	return false
}

func (Collector) HardwareIdle(*sim.Env, sim.View) bool { return false }

// CollectedTags returns the edge tags a Collector recorded, in order.
func CollectedTags(d *sim.Device) []uint32 {
	s := d.View.State()
	n := min(int(s.Uint32(0)), CollectorSlots)
	tags := make([]uint32, n)
	for i := range tags {
		tags[i] = s.Uint32(4 + 4*i)
	}
	return tags
}

// Relay forwards a token around a ring. A relay holding the token sends
// it on; a received token is kept while its hop count is below Limit.
// Limit 0 relays forever. Properties: limit u32. State: has u32, hops u32,
// idles u32.
type Relay struct {
	ExitOnIdle bool
}

func (Relay) Info() *sim.DeviceTypeInfo {
	return &sim.DeviceTypeInfo{
		ID:              "relay",
		PropertiesSize:  4,
		StateSize:       12,
		Inputs:          []sim.InputPinInfo{{Name: "in", MessageSize: MessageSize}},
		Outputs:         []sim.OutputPinInfo{{Name: "out", MessageSize: MessageSize}},
		HasHardwareIdle: true,
	}
}

func (Relay) Init(*sim.Env, sim.View) {}

func (Relay) CalcReadyToSend(_ *sim.Env, dev sim.View) (uint32, bool, bool) {
	if dev.State().Uint32(0) != 0 {
		return 1, false, true
	}
	return 0, false, false
}

func (Relay) TrySendOrCompute(_ *sim.Env, dev sim.View, msg []byte) sim.SendResult {
	s := dev.State()
	if s.Uint32(0) == 0 {
		return sim.NoSend
	}
	s.PutUint32(0, 0)
	sim.Bytes(msg).PutUint32(0, s.Uint32(4)+1)
	return sim.SendResult{Action: sim.ActionSend, OutputPort: 0, Size: MessageSize, SendIndex: -1, Active: false}
}

func (Relay) Recv(_ *sim.Env, _ int, dev sim.View, _ sim.View, msg []byte) bool {
	hops := sim.Bytes(msg).Uint32(0)
	s := dev.State()
	s.PutUint32(4, hops)
	limit := dev.Properties().Uint32(0)
	if limit != 0 && hops >= limit {
		return false
	}
	s.PutUint32(0, 1)
	return true
}

func (r Relay) HardwareIdle(env *sim.Env, dev sim.View) bool {
	s := dev.State()
	s.PutUint32(8, s.Uint32(8)+1)
	if r.ExitOnIdle {
		env.Exit(0)
	}
	return false
}

// RelayHops returns the hop count of the last token a Relay saw.
func RelayHops(d *sim.Device) uint32 { return d.View.State().Uint32(4) }

// RelayIdles returns how many hardware idles a Relay has run.
func RelayIdles(d *sim.Device) uint32 { return d.View.State().Uint32(8) }

// Waker becomes active on each of its first Wakes hardware idles and
// then runs one compute step without sending. Properties: wakes u32.
// State: idles u32, computes u32.
type Waker struct{}

func (Waker) Info() *sim.DeviceTypeInfo {
	return &sim.DeviceTypeInfo{
		ID:              "waker",
		PropertiesSize:  4,
		StateSize:       8,
		HasHardwareIdle: true,
	}
}

func (Waker) Init(*sim.Env, sim.View) {}

func (Waker) CalcReadyToSend(*sim.Env, sim.View) (uint32, bool, bool) { return 0, false, false }

func (Waker) TrySendOrCompute(_ *sim.Env, dev sim.View, _ []byte) sim.SendResult {
	s := dev.State()
	s.PutUint32(4, s.Uint32(4)+1)
	return sim.SendResult{Action: sim.ActionCompute, OutputPort: -1, SendIndex: -1}
}

func (Waker) Recv(*sim.Env, int, sim.View, sim.View, []byte) bool { return false }

func (Waker) HardwareIdle(_ *sim.Env, dev sim.View) bool {
	s := dev.State()
	idles := s.Uint32(0) + 1
	s.PutUint32(0, idles)
	return idles <= dev.Properties().Uint32(0)
}

// WakerIdles returns how many hardware idles a Waker has run.
func WakerIdles(d *sim.Device) uint32 { return d.View.State().Uint32(0) }

// WakerComputes returns how many compute steps a Waker has run.
func WakerComputes(d *sim.Device) uint32 { return d.View.State().Uint32(4) }

// Guard wraps a DeviceType and counts handler calls that overlap on the
// same device, which would mean two goroutines touched it at once.
type Guard struct {
	sim.DeviceType
	busy       sync.Map // *byte -> *atomic.Bool
	Violations atomic.Int64
	Calls      atomic.Int64
}

func (g *Guard) enter(dev sim.View) *atomic.Bool {
	g.Calls.Add(1)
	v, _ := g.busy.LoadOrStore(&dev.Raw()[0], new(atomic.Bool))
	flag := v.(*atomic.Bool)
	if !flag.CompareAndSwap(false, true) {
		g.Violations.Add(1)
		return nil
	}
	return flag
}

func leave(flag *atomic.Bool) {
	if flag != nil {
		flag.Store(false)
	}
}

func (g *Guard) Init(env *sim.Env, dev sim.View) {
	defer leave(g.enter(dev))
	g.DeviceType.Init(env, dev)
}

func (g *Guard) CalcReadyToSend(env *sim.Env, dev sim.View) (uint32, bool, bool) {
	defer leave(g.enter(dev))
	return g.DeviceType.CalcReadyToSend(env, dev)
}

func (g *Guard) TrySendOrCompute(env *sim.Env, dev sim.View, msg []byte) sim.SendResult {
	defer leave(g.enter(dev))
	return g.DeviceType.TrySendOrCompute(env, dev, msg)
}

func (g *Guard) Recv(env *sim.Env, pin int, dev, edge sim.View, msg []byte) bool {
	defer leave(g.enter(dev))
	return g.DeviceType.Recv(env, pin, dev, edge, msg)
}

func (g *Guard) HardwareIdle(env *sim.Env, dev sim.View) bool {
	defer leave(g.enter(dev))
	return g.DeviceType.HardwareIdle(env, dev)
}
