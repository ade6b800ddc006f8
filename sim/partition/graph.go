package partition

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/poets-sim/poems/sim"
)

// Partitioner splits a weighted undirected graph into parts of equal node
// weight, returning the part of every node indexed by node ID.
type Partitioner interface {
	Partition(g *simple.WeightedUndirectedGraph, parts int) ([]int, error)
}

// CommunicationGraph builds the undirected device graph of topo. Node i
// is device i; the weight between two devices is the number of edges
// joining them in either direction. Self-edges are omitted.
func CommunicationGraph(topo *sim.Topology) *simple.WeightedUndirectedGraph {
	g := simple.NewWeightedUndirectedGraph(0, 0)
	for i := range topo.Devices {
		g.AddNode(simple.Node(i))
	}
	for _, d := range topo.Devices {
		for pi := range d.Outputs {
			for _, e := range d.Outputs[pi].Edges {
				if e.Dest.Index == d.Index {
					continue
				}
				u, v := int64(d.Index), int64(e.Dest.Index)
				w, _ := g.Weight(u, v)
				g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(u), simple.Node(v), w+1))
			}
		}
	}
	return g
}

// GraphPartition runs p over g and checks the result covers every node
// with a part in range.
func GraphPartition(g *simple.WeightedUndirectedGraph, parts int, p Partitioner) ([]int, error) {
	out, err := p.Partition(g, parts)
	if err != nil {
		return nil, fmt.Errorf("partitioning %d nodes into %d parts: %w", g.Nodes().Len(), parts, err)
	}
	if len(out) != g.Nodes().Len() {
		return nil, fmt.Errorf("partitioner returned %d entries for %d nodes", len(out), g.Nodes().Len())
	}
	for i, c := range out {
		if c < 0 || c >= parts {
			return nil, fmt.Errorf("partitioner put node %d in part %d, want [0,%d)", i, c, parts)
		}
	}
	return out, nil
}

// EdgeCut returns the total weight of edges whose endpoints are in
// different parts.
func EdgeCut(g *simple.WeightedUndirectedGraph, parts []int) float64 {
	cut := 0.0
	edges := g.WeightedEdges()
	for edges.Next() {
		e := edges.WeightedEdge()
		if parts[e.From().ID()] != parts[e.To().ID()] {
			cut += e.Weight()
		}
	}
	return cut
}

// TotalWeight returns the total edge weight of g.
func TotalWeight(g *simple.WeightedUndirectedGraph) float64 {
	total := 0.0
	edges := g.WeightedEdges()
	for edges.Next() {
		total += edges.WeightedEdge().Weight()
	}
	return total
}

// GreedyGrowing grows each part breadth-first from an unassigned seed
// until it reaches its quota, then improves the cut by moving boundary
// nodes to the neighbouring part they are most strongly connected to.
// Part sizes start at floor(n/parts) or one more and refinement keeps
// them within Imbalance of that.
type GreedyGrowing struct {
	Passes    int     // refinement passes
	Imbalance float64 // allowed size ratio over the quota; 0 means 1.03
}

// Partition implements Partitioner. Nodes must have IDs 0..n-1.
func (p *GreedyGrowing) Partition(g *simple.WeightedUndirectedGraph, parts int) ([]int, error) {
	n := g.Nodes().Len()
	if parts < 1 {
		return nil, fmt.Errorf("part count must be >= 1, got %d", parts)
	}
	if parts > max(n, 1) {
		return nil, fmt.Errorf("cannot split %d nodes into %d parts", n, parts)
	}
	out := make([]int, n)
	for i := range out {
		out[i] = -1
	}
	sizes := make([]int, parts)
	quota := func(part int) int {
		q := n / parts
		if part < n%parts {
			q++
		}
		return q
	}

	next := 0 // lowest candidate seed
	for part := 0; part < parts; part++ {
		want := quota(part)
		for sizes[part] < want {
			for next < n && out[next] >= 0 {
				next++
			}
			if next == n {
				break
			}
			bf := traverse.BreadthFirst{
				// The expanding end is already placed, so this admits
				// exactly the unplaced neighbours whatever the orientation.
				Traverse: func(e graph.Edge) bool { return out[e.From().ID()] < 0 || out[e.To().ID()] < 0 },
			}
			bf.Walk(g, g.Node(int64(next)), func(v graph.Node, _ int) bool {
				out[v.ID()] = part
				sizes[part]++
				return sizes[part] == want
			})
		}
	}

	imbalance := p.Imbalance
	if imbalance <= 0 {
		imbalance = 1.03
	}
	hi := int(math.Ceil(float64(quota(0)) * imbalance))
	lo := int(math.Floor(float64(quota(parts-1)) / imbalance))
	for pass := 0; pass < p.Passes; pass++ {
		if refine(g, out, sizes, lo, hi) == 0 {
			break
		}
	}
	return out, nil
}

// refine makes one pass of positive-gain boundary moves and returns how
// many nodes moved.
func refine(g *simple.WeightedUndirectedGraph, out, sizes []int, lo, hi int) int {
	moved := 0
	conn := make(map[int]float64)
	for u := range out {
		from := out[u]
		if sizes[from] <= lo {
			continue
		}
		clear(conn)
		neighbours := g.From(int64(u))
		for neighbours.Next() {
			v := neighbours.Node().ID()
			w, _ := g.Weight(int64(u), v)
			conn[out[v]] += w
		}
		best, gain := from, 0.0
		for to, w := range conn {
			if to == from || sizes[to] >= hi {
				continue
			}
			if d := w - conn[from]; d > gain || (d == gain && d > 0 && to < best) {
				best, gain = to, d
			}
		}
		if best != from {
			out[u] = best
			sizes[from]--
			sizes[best]++
			moved++
		}
	}
	return moved
}
