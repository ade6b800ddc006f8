package sim

import "fmt"

// Device is one simulated device instance.
type Device struct {
	ID        string
	Index     int // position in Topology.Devices
	TypeIndex int
	// Cluster and Slot are assigned once by Topology.ApplyAssignment.
	Cluster int
	Slot    int
	View    View
	Outputs []OutputPort
}

// OutputPort holds the ordered edge list of one output pin. Edge blobs for
// the port are packed into one buffer.
type OutputPort struct {
	Edges   []Edge
	Indexed bool
	data    []byte
}

// Edge is one directed connection from an output port to an input pin.
type Edge struct {
	Dest *Device
	Pin  int
	// SendIndex is the edge's position on an indexed port, or -1 if the
	// loader did not give one.
	SendIndex   int
	Local       bool
	DestCluster int
	View        View
	offset      int
}

// Topology is the device graph produced by Builder. It is mutable until
// ApplyAssignment freezes cluster membership and locality.
type Topology struct {
	GraphID  string
	Env      *Env
	Provider *Provider
	Devices  []*Device

	clusters int
	frozen   bool
	members  [][]*Device
	arenas   [][]byte
}

// Frozen reports whether cluster assignment has been applied.
func (t *Topology) Frozen() bool { return t.frozen }

// ClusterCount returns the number of clusters, or 0 before assignment.
func (t *Topology) ClusterCount() int { return t.clusters }

// Members returns the devices of cluster c ordered by slot.
func (t *Topology) Members(c int) []*Device { return t.members[c] }

// EdgeCount returns the total number of edges.
func (t *Topology) EdgeCount() int {
	n := 0
	for _, d := range t.Devices {
		for i := range d.Outputs {
			n += len(d.Outputs[i].Edges)
		}
	}
	return n
}

// Locality counts local and non-local edges. Only meaningful once frozen.
func (t *Topology) Locality() (local, nonLocal int) {
	for _, d := range t.Devices {
		for i := range d.Outputs {
			for j := range d.Outputs[i].Edges {
				if d.Outputs[i].Edges[j].Local {
					local++
				} else {
					nonLocal++
				}
			}
		}
	}
	return local, nonLocal
}

// ApplyAssignment places device i in cluster parts[i], computes every
// edge's locality and destination cluster, and packs each cluster's device
// buffers into one contiguous arena. It may be called only once; a second
// call panics.
func (t *Topology) ApplyAssignment(parts []int, clusters int) error {
	if t.frozen {
		panic("sim: ApplyAssignment called on a frozen topology")
	}
	if len(parts) != len(t.Devices) {
		return fmt.Errorf("assignment covers %d devices, topology has %d", len(parts), len(t.Devices))
	}
	if clusters < 1 {
		return fmt.Errorf("cluster count must be >= 1, got %d", clusters)
	}
	members := make([][]*Device, clusters)
	for i, c := range parts {
		if c < 0 || c >= clusters {
			return fmt.Errorf("device %s assigned to cluster %d, want [0,%d)", t.Devices[i].ID, c, clusters)
		}
		members[c] = append(members[c], t.Devices[i])
	}
	for c, devs := range members {
		for slot, d := range devs {
			d.Cluster = c
			d.Slot = slot
		}
	}
	for _, d := range t.Devices {
		for i := range d.Outputs {
			edges := d.Outputs[i].Edges
			for j := range edges {
				edges[j].DestCluster = edges[j].Dest.Cluster
				edges[j].Local = edges[j].DestCluster == d.Cluster
			}
		}
	}

	t.arenas = make([][]byte, clusters)
	for c, devs := range members {
		size := 0
		for _, d := range devs {
			size += d.View.Len()
		}
		arena := make([]byte, size)
		off := 0
		for _, d := range devs {
			n := d.View.Len()
			d.View = d.View.rebase(arena[off : off+n])
			off += n
		}
		t.arenas[c] = arena
	}

	t.members = members
	t.clusters = clusters
	t.frozen = true
	return nil
}
