package sim

// PayloadAlignment is the byte alignment of every properties/state region.
const PayloadAlignment = 8

// PaddedSize rounds n up to the next multiple of PayloadAlignment.
func PaddedSize(n int) int {
	return (n + PayloadAlignment - 1) &^ (PayloadAlignment - 1)
}

// GraphTypeInfo describes the graph-level static layout.
type GraphTypeInfo struct {
	ID             string
	PropertiesSize int
	// MaxMessageSize bounds every message payload of every device type.
	MaxMessageSize int
}

// InputPinInfo describes one input pin of a device type. Edges terminating
// on the pin carry a properties+state blob of this layout.
type InputPinInfo struct {
	Name           string
	MessageSize    int
	PropertiesSize int
	StateSize      int
}

// EdgeSize returns the padded byte size of one edge blob for this pin.
func (p InputPinInfo) EdgeSize() int {
	return PaddedSize(p.PropertiesSize) + PaddedSize(p.StateSize)
}

// OutputPinInfo describes one output port of a device type.
type OutputPinInfo struct {
	Name        string
	MessageSize int
	// Indexed ports deliver each message to exactly one edge selected by
	// send index, instead of broadcasting to every edge.
	Indexed bool
}

// DeviceTypeInfo is the static descriptor of a device type.
type DeviceTypeInfo struct {
	ID              string
	PropertiesSize  int
	StateSize       int
	Inputs          []InputPinInfo
	Outputs         []OutputPinInfo
	HasHardwareIdle bool
}

// DeviceSize returns the padded byte size of one device buffer.
func (d *DeviceTypeInfo) DeviceSize() int {
	return PaddedSize(d.PropertiesSize) + PaddedSize(d.StateSize)
}

// InputIndex returns the index of the named input pin, or -1.
func (d *DeviceTypeInfo) InputIndex(name string) int {
	for i, p := range d.Inputs {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// OutputIndex returns the index of the named output port, or -1.
func (d *DeviceTypeInfo) OutputIndex(name string) int {
	for i, p := range d.Outputs {
		if p.Name == name {
			return i
		}
	}
	return -1
}
