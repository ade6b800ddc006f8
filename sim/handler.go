package sim

import (
	"fmt"
	"sync/atomic"
)

// Action reports what TrySendOrCompute did.
type Action int

const (
	// ActionNone means the device had nothing to do.
	ActionNone Action = iota
	// ActionSend means a send handler ran. OutputPort may still be -1 if
	// the handler chose not to emit a message.
	ActionSend
	// ActionCompute means a compute step ran and no message was produced.
	ActionCompute
)

// SendResult is returned by DeviceType.TrySendOrCompute.
type SendResult struct {
	Action Action
	// OutputPort is the port to deliver on, or -1 for no message.
	OutputPort int
	// Size is the payload length written into the message buffer.
	Size int
	// SendIndex selects one edge of an indexed port, or -1 to broadcast.
	SendIndex int
	// Active is false only if the device is definitely idle until an
	// external event (a message or hardware idle) reaches it.
	Active bool
}

// NoSend is the SendResult of a device with nothing to do.
var NoSend = SendResult{Action: ActionNone, OutputPort: -1, SendIndex: -1}

// DeviceType is the handler contract for one device type. Every handler
// is called by the goroutine currently owning the device's cluster, so a
// handler may mutate the device view (and the edge view in Recv) freely.
//
// Active results follow one rule: false is a precise guarantee that the
// device will do nothing until some external event; true is only a hint
// that the engine must call TrySendOrCompute again.
type DeviceType interface {
	Info() *DeviceTypeInfo
	Init(env *Env, dev View)
	// CalcReadyToSend must be precise: active == (rts != 0 || requestCompute).
	CalcReadyToSend(env *Env, dev View) (rts uint32, requestCompute bool, active bool)
	// TrySendOrCompute performs at most one send or compute step, writing
	// any message payload into msg.
	TrySendOrCompute(env *Env, dev View, msg []byte) SendResult
	Recv(env *Env, pin int, dev View, edge View, msg []byte) bool
	// HardwareIdle is only called when the whole graph is quiescent.
	HardwareIdle(env *Env, dev View) bool
}

// Provider resolves device type ids to small integer indices and
// dispatches by index.
type Provider struct {
	graph GraphTypeInfo
	types []DeviceType
	index map[string]int
}

// NewProvider registers the graph type and its device types. Type index i
// is types[i].
func NewProvider(graph GraphTypeInfo, types ...DeviceType) (*Provider, error) {
	p := &Provider{
		graph: graph,
		types: types,
		index: make(map[string]int, len(types)),
	}
	for i, t := range types {
		info := t.Info()
		if _, dup := p.index[info.ID]; dup {
			return nil, fmt.Errorf("duplicate device type %q", info.ID)
		}
		for _, o := range info.Outputs {
			if o.MessageSize > graph.MaxMessageSize {
				return nil, fmt.Errorf("device type %q output %q: message size %d exceeds graph maximum %d",
					info.ID, o.Name, o.MessageSize, graph.MaxMessageSize)
			}
		}
		p.index[info.ID] = i
	}
	return p, nil
}

// Graph returns the graph type descriptor.
func (p *Provider) Graph() GraphTypeInfo { return p.graph }

// NumTypes returns the number of registered device types.
func (p *Provider) NumTypes() int { return len(p.types) }

// Type returns the device type at index i. Panics if i is out of range.
func (p *Provider) Type(i int) DeviceType { return p.types[i] }

// Types returns the dispatch table, indexed by type index.
func (p *Provider) Types() []DeviceType { return p.types }

// Lookup returns the type index for id.
func (p *Provider) Lookup(id string) (int, bool) {
	i, ok := p.index[id]
	return i, ok
}

// MaxMessageSize returns the graph-wide payload bound.
func (p *Provider) MaxMessageSize() int { return p.graph.MaxMessageSize }

// Env is the per-graph context passed to every handler. Graph properties
// are read-only once the graph is built; Exit is safe to call from any
// goroutine.
type Env struct {
	properties Bytes
	exit       atomic.Pointer[int]
}

// NewEnv creates an Env over the given graph properties buffer.
func NewEnv(properties []byte) *Env {
	return &Env{properties: properties}
}

// GraphProperties returns the graph properties record.
func (e *Env) GraphProperties() Bytes { return e.properties }

// Exit requests that the run stop with the given code. Only the first
// request is recorded.
func (e *Env) Exit(code int) {
	e.exit.CompareAndSwap(nil, &code)
}

// ExitRequested reports whether a handler has requested exit, and with
// which code.
func (e *Env) ExitRequested() (int, bool) {
	p := e.exit.Load()
	if p == nil {
		return 0, false
	}
	return *p, true
}
