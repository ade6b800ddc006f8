package workload

import (
	"fmt"
	"math/rand"

	"github.com/poets-sim/poems/sim"
)

// RingGraphTypeID is the graph type of generated token rings.
const RingGraphTypeID = "token_ring"

// Node layout.
//
//	properties: length u32 @0
//	state:      has u32 @0, hops u32 @4, forwarded u32 @8
//	message:    hops u32 @0
//	graph:      laps u32 @0
const (
	nodeHas       = 0
	nodeHops      = 4
	nodeForwarded = 8

	ringMessageSize = 4
)

// Node passes a token to the next node of its ring. A token is absorbed
// once it has made the graph's lap count around a ring.
type Node struct{}

var nodeInfo = &sim.DeviceTypeInfo{
	ID:              "node",
	PropertiesSize:  4,
	StateSize:       12,
	Inputs:          []sim.InputPinInfo{{Name: "in", MessageSize: ringMessageSize}},
	Outputs:         []sim.OutputPinInfo{{Name: "out", MessageSize: ringMessageSize}},
	HasHardwareIdle: true,
}

func (Node) Info() *sim.DeviceTypeInfo { return nodeInfo }

func (Node) Init(*sim.Env, sim.View) {}

func (Node) CalcReadyToSend(_ *sim.Env, dev sim.View) (uint32, bool, bool) {
	has := dev.State().Uint32(nodeHas)
	return has, false, has != 0
}

func (Node) TrySendOrCompute(_ *sim.Env, dev sim.View, msg []byte) sim.SendResult {
	s := dev.State()
	if s.Uint32(nodeHas) == 0 {
		return sim.NoSend
	}
	s.PutUint32(nodeHas, 0)
	s.PutUint32(nodeForwarded, s.Uint32(nodeForwarded)+1)
	sim.Bytes(msg).PutUint32(0, s.Uint32(nodeHops)+1)
	return sim.SendResult{Action: sim.ActionSend, OutputPort: 0, Size: ringMessageSize, SendIndex: -1}
}

func (Node) Recv(env *sim.Env, _ int, dev sim.View, _ sim.View, msg []byte) bool {
	s := dev.State()
	hops := sim.Bytes(msg).Uint32(0)
	s.PutUint32(nodeHops, hops)
	limit := env.GraphProperties().Uint32(0) * dev.Properties().Uint32(0)
	if hops >= limit {
		return false
	}
	s.PutUint32(nodeHas, 1)
	return true
}

// HardwareIdle ends the run: every token has been absorbed.
func (Node) HardwareIdle(env *sim.Env, _ sim.View) bool {
	env.Exit(0)
	return false
}

// NodeHops returns the hop count of the last token a node saw.
func NodeHops(d *sim.Device) uint32 { return d.View.State().Uint32(nodeHops) }

// NodeForwarded returns how many times a node has passed a token on.
func NodeForwarded(d *sim.Device) uint32 { return d.View.State().Uint32(nodeForwarded) }

// RingProvider returns the provider for token ring graphs.
func RingProvider() (*sim.Provider, error) {
	return sim.NewProvider(sim.GraphTypeInfo{
		ID:             RingGraphTypeID,
		PropertiesSize: 4,
		MaxMessageSize: ringMessageSize,
	}, Node{})
}

// GenerateRing emits spec.Rings rings of spec.Length nodes, each with
// node 0 holding the token. Devices are declared ring by ring, so device
// r*Length+i is node i of ring r, unless spec.Shuffle declares them in
// random order.
func GenerateRing(ev sim.GraphLoadEvents, spec *RingSpec, rng *rand.Rand) error {
	gp := sim.Bytes(make([]byte, 4))
	gp.PutUint32(0, uint32(spec.Laps))
	if err := ev.OnBeginGraphInstance(RingGraphTypeID, fmt.Sprintf("ring_%dx%d", spec.Rings, spec.Length), gp); err != nil {
		return err
	}

	total := spec.Rings * spec.Length
	order := make([]int, total)
	for i := range order {
		order[i] = i
	}
	if spec.Shuffle {
		rng.Shuffle(total, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	index := make([]int, total)
	props := sim.Bytes(make([]byte, nodeInfo.PropertiesSize))
	props.PutUint32(0, uint32(spec.Length))
	for _, k := range order {
		r, i := k/spec.Length, k%spec.Length
		state := sim.Bytes(make([]byte, nodeInfo.StateSize))
		if i == 0 {
			state.PutUint32(nodeHas, 1)
		}
		idx, err := ev.OnDeviceInstance("node", fmt.Sprintf("n_%d_%d", r, i), props, state)
		if err != nil {
			return err
		}
		index[k] = idx
	}

	for k := 0; k < total; k++ {
		r, i := k/spec.Length, k%spec.Length
		next := r*spec.Length + (i+1)%spec.Length
		if err := ev.OnEdgeInstance(index[next], 0, index[k], 0, -1, nil, nil); err != nil {
			return err
		}
	}
	if err := ev.OnEndEdgeInstances(); err != nil {
		return err
	}
	return ev.OnEndGraphInstance()
}

// RingMessages returns the number of messages a ring run delivers.
func RingMessages(spec *RingSpec) uint64 {
	return uint64(spec.Rings) * uint64(spec.Laps) * uint64(spec.Length)
}
