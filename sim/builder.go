package sim

import (
	"fmt"
	"sort"
	"strconv"
)

// GraphLoadEvents is the callback surface a graph loader drives, in order:
// one OnBeginGraphInstance, any number of OnDeviceInstance, any number of
// OnEdgeInstance, then OnEndEdgeInstances and OnEndGraphInstance.
//
// A nil properties or state payload means "all zero". A non-nil payload
// must be exactly the size its descriptor declares.
type GraphLoadEvents interface {
	OnBeginGraphInstance(graphTypeID, id string, properties []byte) error
	OnDeviceInstance(deviceTypeID, id string, properties, state []byte) (int, error)
	// OnEdgeInstance connects output port srcPort of device src to input
	// pin dstPin of device dst. sendIndex is -1 when the loader gives none.
	OnEdgeInstance(dst, dstPin, src, srcPort, sendIndex int, properties, state []byte) error
	OnEndEdgeInstances() error
	OnEndGraphInstance() error
}

type buildPhase int

const (
	phaseIdle buildPhase = iota
	phaseDevices
	phaseEdges
	phaseEdgesDone
	phaseDone
)

// Builder turns graph loading callbacks into a Topology. It validates
// every payload against the provider's descriptors.
type Builder struct {
	provider *Provider
	phase    buildPhase
	topo     *Topology
	ids      map[string]int
}

var _ GraphLoadEvents = (*Builder)(nil)

// NewBuilder creates a Builder that resolves types through p.
func NewBuilder(p *Provider) *Builder {
	return &Builder{provider: p, ids: make(map[string]int)}
}

func (b *Builder) expect(op string, phases ...buildPhase) error {
	for _, p := range phases {
		if b.phase == p {
			return nil
		}
	}
	return &BuildError{Op: op, ID: "", Err: ErrGraphState}
}

// OnBeginGraphInstance starts a graph instance of the given graph type.
func (b *Builder) OnBeginGraphInstance(graphTypeID, id string, properties []byte) error {
	const op = "begin graph"
	if err := b.expect(op, phaseIdle); err != nil {
		return err
	}
	graph := b.provider.Graph()
	if graphTypeID != graph.ID {
		return &BuildError{Op: op, ID: id, Type: graphTypeID, Err: ErrUnknownType}
	}
	props, err := fill(properties, graph.PropertiesSize, PaddedSize(graph.PropertiesSize))
	if err != nil {
		return &BuildError{Op: op, ID: id, Type: graphTypeID, Err: fmt.Errorf("graph properties: %w", err)}
	}
	b.topo = &Topology{
		GraphID:  id,
		Env:      NewEnv(props),
		Provider: b.provider,
	}
	b.phase = phaseDevices
	return nil
}

// OnDeviceInstance adds a device and returns its index.
func (b *Builder) OnDeviceInstance(deviceTypeID, id string, properties, state []byte) (int, error) {
	const op = "device"
	if err := b.expect(op, phaseDevices); err != nil {
		return -1, err
	}
	ti, ok := b.provider.Lookup(deviceTypeID)
	if !ok {
		return -1, &BuildError{Op: op, ID: id, Type: deviceTypeID, Err: ErrUnknownType}
	}
	if _, dup := b.ids[id]; dup {
		return -1, &BuildError{Op: op, ID: id, Type: deviceTypeID, Err: fmt.Errorf("%w: duplicate device id", ErrGraphState)}
	}
	info := b.provider.Type(ti).Info()

	buf := make([]byte, info.DeviceSize())
	split := PaddedSize(info.PropertiesSize)
	if err := fillInto(buf[:split], properties, info.PropertiesSize); err != nil {
		return -1, &BuildError{Op: op, ID: id, Type: deviceTypeID, Err: fmt.Errorf("properties: %w", err)}
	}
	if err := fillInto(buf[split:], state, info.StateSize); err != nil {
		return -1, &BuildError{Op: op, ID: id, Type: deviceTypeID, Err: fmt.Errorf("state: %w", err)}
	}

	dev := &Device{
		ID:        id,
		Index:     len(b.topo.Devices),
		TypeIndex: ti,
		View:      NewView(buf, info.PropertiesSize),
		Outputs:   make([]OutputPort, len(info.Outputs)),
	}
	for i, o := range info.Outputs {
		dev.Outputs[i].Indexed = o.Indexed
	}
	b.topo.Devices = append(b.topo.Devices, dev)
	b.ids[id] = dev.Index
	return dev.Index, nil
}

// OnEdgeInstance adds one edge.
func (b *Builder) OnEdgeInstance(dst, dstPin, src, srcPort, sendIndex int, properties, state []byte) error {
	const op = "edge"
	if err := b.expect(op, phaseDevices, phaseEdges); err != nil {
		return err
	}
	b.phase = phaseEdges
	devs := b.topo.Devices
	id := strconv.Itoa(src) + ":" + strconv.Itoa(srcPort) + "->" + strconv.Itoa(dst) + ":" + strconv.Itoa(dstPin)
	if dst < 0 || dst >= len(devs) || src < 0 || src >= len(devs) {
		return &BuildError{Op: op, ID: id, Err: fmt.Errorf("%w: device index out of range", ErrGraphState)}
	}
	dstDev, srcDev := devs[dst], devs[src]
	dstInfo := b.provider.Type(dstDev.TypeIndex).Info()
	srcInfo := b.provider.Type(srcDev.TypeIndex).Info()
	id = srcDev.ID + ":" + strconv.Itoa(srcPort) + "->" + dstDev.ID + ":" + strconv.Itoa(dstPin)
	if dstPin < 0 || dstPin >= len(dstInfo.Inputs) {
		return &BuildError{Op: op, ID: id, Type: dstInfo.ID, Err: fmt.Errorf("%w: no input pin %d", ErrGraphState, dstPin)}
	}
	if srcPort < 0 || srcPort >= len(srcInfo.Outputs) {
		return &BuildError{Op: op, ID: id, Type: srcInfo.ID, Err: fmt.Errorf("%w: no output port %d", ErrGraphState, srcPort)}
	}
	in, out := dstInfo.Inputs[dstPin], srcInfo.Outputs[srcPort]
	if in.MessageSize != out.MessageSize {
		return &BuildError{Op: op, ID: id, Err: fmt.Errorf("%w: output %q sends %d bytes, input %q expects %d",
			ErrSizeMismatch, out.Name, out.MessageSize, in.Name, in.MessageSize)}
	}
	if sendIndex < -1 || (sendIndex >= 0 && !out.Indexed) {
		return &BuildError{Op: op, ID: id, Err: fmt.Errorf("%w: %d on port %q", ErrSendIndex, sendIndex, out.Name)}
	}

	port := &srcDev.Outputs[srcPort]
	off := len(port.data)
	port.data = append(port.data, make([]byte, in.EdgeSize())...)
	blob := port.data[off:]
	split := PaddedSize(in.PropertiesSize)
	if err := fillInto(blob[:split], properties, in.PropertiesSize); err != nil {
		return &BuildError{Op: op, ID: id, Err: fmt.Errorf("edge properties: %w", err)}
	}
	if err := fillInto(blob[split:], state, in.StateSize); err != nil {
		return &BuildError{Op: op, ID: id, Err: fmt.Errorf("edge state: %w", err)}
	}
	port.Edges = append(port.Edges, Edge{
		Dest:      dstDev,
		Pin:       dstPin,
		SendIndex: sendIndex,
		offset:    off,
	})
	return nil
}

// OnEndEdgeInstances binds edge views and validates send indices. Per
// port, indices must be all implicit or all explicit; explicit indices are
// sorted and must then be exactly 0..k-1.
func (b *Builder) OnEndEdgeInstances() error {
	const op = "end edges"
	if err := b.expect(op, phaseDevices, phaseEdges); err != nil {
		return err
	}
	for _, d := range b.topo.Devices {
		info := b.provider.Type(d.TypeIndex).Info()
		for pi := range d.Outputs {
			port := &d.Outputs[pi]
			if err := normalizeSendIndices(port); err != nil {
				return &BuildError{Op: op, ID: d.ID + ":" + info.Outputs[pi].Name, Type: info.ID, Err: err}
			}
			for ei := range port.Edges {
				e := &port.Edges[ei]
				in := b.provider.Type(e.Dest.TypeIndex).Info().Inputs[e.Pin]
				size := in.EdgeSize()
				e.View = NewView(port.data[e.offset:e.offset+size:e.offset+size], in.PropertiesSize)
			}
		}
	}
	b.phase = phaseEdgesDone
	return nil
}

func normalizeSendIndices(port *OutputPort) error {
	explicit := 0
	for _, e := range port.Edges {
		if e.SendIndex >= 0 {
			explicit++
		}
	}
	switch {
	case explicit == 0:
		if port.Indexed {
			for i := range port.Edges {
				port.Edges[i].SendIndex = i
			}
		}
		return nil
	case explicit != len(port.Edges):
		return fmt.Errorf("%w: %d of %d edges have explicit indices", ErrSendIndex, explicit, len(port.Edges))
	}
	sort.SliceStable(port.Edges, func(i, j int) bool {
		return port.Edges[i].SendIndex < port.Edges[j].SendIndex
	})
	for i, e := range port.Edges {
		if e.SendIndex != i {
			return fmt.Errorf("%w: indices not contiguous from zero (position %d has index %d)", ErrSendIndex, i, e.SendIndex)
		}
	}
	return nil
}

// OnEndGraphInstance completes loading.
func (b *Builder) OnEndGraphInstance() error {
	if err := b.expect("end graph", phaseEdgesDone); err != nil {
		return err
	}
	b.phase = phaseDone
	return nil
}

// Topology returns the finished topology. It fails until
// OnEndGraphInstance has succeeded.
func (b *Builder) Topology() (*Topology, error) {
	if b.phase != phaseDone {
		return nil, fmt.Errorf("graph not complete: %w", ErrGraphState)
	}
	return b.topo, nil
}

// fill returns a zeroed buffer of length padded holding payload, which
// must be nil or exactly size bytes long.
func fill(payload []byte, size, padded int) ([]byte, error) {
	buf := make([]byte, padded)
	return buf, fillInto(buf, payload, size)
}

func fillInto(dst, payload []byte, size int) error {
	if payload == nil {
		return nil
	}
	if len(payload) != size {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, len(payload), size)
	}
	copy(dst, payload)
	return nil
}
