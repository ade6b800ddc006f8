package workload

import (
	"fmt"
	"math/rand"

	"github.com/poets-sim/poems/sim"
)

// HeatGraphTypeID is the graph type of generated heat graphs.
const HeatGraphTypeID = "gals_heat"

// Cell layout.
//
//	properties: wSelf f32 @0, degree u32 @4, fixed i8 @8
//	state:      t u32 @0, v f32 @4, ca f32 @8, na f32 @12, cs u32 @16, ns u32 @20, rts u32 @24
//	edge:       w f32 @0
//	message:    t u32 @0, v f32 @4
//	graph:      max_t u32 @0
const (
	cellPropWSelf  = 0
	cellPropDegree = 4
	cellPropFixed  = 8

	cellT   = 0
	cellV   = 4
	cellCA  = 8
	cellNA  = 12
	cellCS  = 16
	cellNS  = 20
	cellRTS = 24

	heatMessageSize = 8
)

// Cell is one grid point of a globally asynchronous heat diffusion. A cell
// at time t waits for all neighbour values for t, then advances to t+1 and
// broadcasts its new value. Values for t+1 that arrive early are
// accumulated separately. Fixed cells keep their initial value.
type Cell struct{}

var cellInfo = &sim.DeviceTypeInfo{
	ID:             "cell",
	PropertiesSize: 9,
	StateSize:      28,
	Inputs: []sim.InputPinInfo{
		{Name: "in", MessageSize: heatMessageSize, PropertiesSize: 4},
	},
	Outputs: []sim.OutputPinInfo{
		{Name: "out", MessageSize: heatMessageSize},
	},
	HasHardwareIdle: true,
}

func (Cell) Info() *sim.DeviceTypeInfo { return cellInfo }

// Init starts the cell at t=0 with the value the generator stored in v.
func (Cell) Init(_ *sim.Env, dev sim.View) {
	p, s := dev.Properties(), dev.State()
	v := s.Float32(cellV)
	s.PutUint32(cellCS, p.Uint32(cellPropDegree))
	s.PutFloat32(cellCA, p.Float32(cellPropWSelf)*v)
	s.PutUint32(cellNS, 0)
	s.PutFloat32(cellNA, 0)
	s.PutUint32(cellRTS, 1)
}

func (Cell) CalcReadyToSend(_ *sim.Env, dev sim.View) (uint32, bool, bool) {
	rts := dev.State().Uint32(cellRTS)
	return rts, false, rts != 0
}

func (Cell) TrySendOrCompute(env *sim.Env, dev sim.View, msg []byte) sim.SendResult {
	p, s := dev.Properties(), dev.State()
	if s.Uint32(cellRTS) == 0 {
		return sim.NoSend
	}
	maxT := env.GraphProperties().Uint32(0)

	t := s.Uint32(cellT) + 1
	v := s.Float32(cellV)
	if p.Int8(cellPropFixed) == 0 {
		v = s.Float32(cellCA)
	}
	s.PutUint32(cellT, t)
	s.PutFloat32(cellV, v)
	s.PutFloat32(cellCA, s.Float32(cellNA)+p.Float32(cellPropWSelf)*v)
	s.PutUint32(cellCS, s.Uint32(cellNS))
	s.PutFloat32(cellNA, 0)
	s.PutUint32(cellNS, 0)

	m := sim.Bytes(msg)
	m.PutUint32(0, t)
	m.PutFloat32(4, v)

	rts := uint32(0)
	if s.Uint32(cellCS) == p.Uint32(cellPropDegree) && t < maxT {
		rts = 1
	}
	s.PutUint32(cellRTS, rts)
	return sim.SendResult{
		Action:     sim.ActionSend,
		OutputPort: 0,
		Size:       heatMessageSize,
		SendIndex:  -1,
		Active:     rts != 0,
	}
}

func (Cell) Recv(env *sim.Env, _ int, dev sim.View, edge sim.View, msg []byte) bool {
	p, s, m := dev.Properties(), dev.State(), sim.Bytes(msg)
	w := edge.Properties().Float32(0)
	mt, mv := m.Uint32(0), m.Float32(4)
	t := s.Uint32(cellT)
	if mt != t && mt != t+1 {
		panic(fmt.Sprintf("heat cell at t=%d received message for t=%d", t, mt))
	}
	if mt == t {
		cs := s.Uint32(cellCS) + 1
		s.PutUint32(cellCS, cs)
		s.PutFloat32(cellCA, s.Float32(cellCA)+w*mv)
		if cs == p.Uint32(cellPropDegree) && t < env.GraphProperties().Uint32(0) {
			s.PutUint32(cellRTS, 1)
		}
	} else {
		s.PutUint32(cellNS, s.Uint32(cellNS)+1)
		s.PutFloat32(cellNA, s.Float32(cellNA)+w*mv)
	}
	return s.Uint32(cellRTS) != 0
}

// HardwareIdle ends the run: every cell has reached max_t.
func (Cell) HardwareIdle(env *sim.Env, _ sim.View) bool {
	env.Exit(0)
	return false
}

// CellTime returns a cell's current time step.
func CellTime(d *sim.Device) uint32 { return d.View.State().Uint32(cellT) }

// CellValue returns a cell's value at its current time step.
func CellValue(d *sim.Device) float32 { return d.View.State().Float32(cellV) }

// HeatProvider returns the provider for heat graphs.
func HeatProvider() (*sim.Provider, error) {
	return sim.NewProvider(sim.GraphTypeInfo{
		ID:             HeatGraphTypeID,
		PropertiesSize: 4,
		MaxMessageSize: heatMessageSize,
	}, Cell{})
}

// GenerateHeat emits an n x n grid of cells with 4-neighbour connectivity.
// Each cell's self weight is 0.25 and each incoming edge carries 0.75
// divided by the cell's degree. Initial values are uniform in
// [0, spec.InitialMax).
func GenerateHeat(ev sim.GraphLoadEvents, spec *HeatSpec, rng *rand.Rand) error {
	n := spec.Size
	gp := sim.Bytes(make([]byte, 4))
	gp.PutUint32(0, spec.MaxTime)
	if err := ev.OnBeginGraphInstance(HeatGraphTypeID, fmt.Sprintf("heat_%d", n), gp); err != nil {
		return err
	}

	props := sim.Bytes(make([]byte, cellInfo.PropertiesSize))
	state := sim.Bytes(make([]byte, cellInfo.StateSize))
	for i := 0; i < n*n; i++ {
		x, y := i%n, i/n
		degree := degreeAt(x, y, n)
		props.PutFloat32(cellPropWSelf, 0.25)
		props.PutUint32(cellPropDegree, uint32(degree))
		fixed := int8(0)
		if spec.FixedBoundary && degree < 4 {
			fixed = 1
		}
		props.PutInt8(cellPropFixed, fixed)
		state.PutFloat32(cellV, float32(rng.Float64()*spec.InitialMax))
		if _, err := ev.OnDeviceInstance("cell", fmt.Sprintf("c_%d_%d", x, y), props, state); err != nil {
			return err
		}
	}

	edge := sim.Bytes(make([]byte, 4))
	for i := 0; i < n*n; i++ {
		x, y := i%n, i/n
		edge.PutFloat32(0, 0.75/float32(degreeAt(x, y, n)))
		for _, src := range neighbours(x, y, n) {
			if err := ev.OnEdgeInstance(i, 0, src, 0, -1, edge, nil); err != nil {
				return err
			}
		}
	}
	if err := ev.OnEndEdgeInstances(); err != nil {
		return err
	}
	return ev.OnEndGraphInstance()
}

func degreeAt(x, y, n int) int {
	d := 4
	if x == 0 || x == n-1 {
		d--
	}
	if y == 0 || y == n-1 {
		d--
	}
	return d
}

func neighbours(x, y, n int) []int {
	out := make([]int, 0, 4)
	if x != 0 {
		out = append(out, y*n+x-1)
	}
	if y != 0 {
		out = append(out, (y-1)*n+x)
	}
	if x != n-1 {
		out = append(out, y*n+x+1)
	}
	if y != n-1 {
		out = append(out, (y+1)*n+x)
	}
	return out
}

// HeatMessages returns the number of messages a heat run delivers: every
// cell broadcasts once per time step to each neighbour.
func HeatMessages(n int, maxT uint32) uint64 {
	if n < 2 {
		return 0
	}
	return uint64(maxT) * uint64(4*n*(n-1))
}
