package sim

import (
	"encoding/binary"
	"math"
)

// Bytes is a fixed-layout little-endian record. Offsets are byte offsets
// into the record; out-of-range accesses panic.
type Bytes []byte

func (b Bytes) Uint8(off int) uint8         { return b[off] }
func (b Bytes) PutUint8(off int, v uint8)   { b[off] = v }
func (b Bytes) Int8(off int) int8           { return int8(b[off]) }
func (b Bytes) PutInt8(off int, v int8)     { b[off] = byte(v) }
func (b Bytes) Uint32(off int) uint32       { return binary.LittleEndian.Uint32(b[off:]) }
func (b Bytes) PutUint32(off int, v uint32) { binary.LittleEndian.PutUint32(b[off:], v) }
func (b Bytes) Int32(off int) int32         { return int32(b.Uint32(off)) }
func (b Bytes) PutInt32(off int, v int32)   { b.PutUint32(off, uint32(v)) }
func (b Bytes) Uint64(off int) uint64       { return binary.LittleEndian.Uint64(b[off:]) }
func (b Bytes) PutUint64(off int, v uint64) { binary.LittleEndian.PutUint64(b[off:], v) }

func (b Bytes) Float32(off int) float32 {
	return math.Float32frombits(b.Uint32(off))
}

func (b Bytes) PutFloat32(off int, v float32) {
	b.PutUint32(off, math.Float32bits(v))
}

// View is a typed window over a properties-then-state buffer. The
// properties region is padded to PayloadAlignment; the state region
// follows it. The zero View has empty regions.
type View struct {
	buf   []byte
	split int
}

// NewView creates a View over buf whose properties region holds
// propertiesSize bytes (before padding).
func NewView(buf []byte, propertiesSize int) View {
	split := PaddedSize(propertiesSize)
	if split > len(buf) {
		panic("sim: view properties region exceeds buffer")
	}
	return View{buf: buf, split: split}
}

// Properties returns the properties region.
func (v View) Properties() Bytes { return Bytes(v.buf[:v.split]) }

// State returns the state region.
func (v View) State() Bytes { return Bytes(v.buf[v.split:]) }

// Raw returns the whole buffer.
func (v View) Raw() []byte { return v.buf }

// Len returns the total buffer length.
func (v View) Len() int { return len(v.buf) }

// rebase returns a View with the same layout over dst, after copying the
// current contents into it.
func (v View) rebase(dst []byte) View {
	copy(dst, v.buf)
	return View{buf: dst[:len(v.buf):len(v.buf)], split: v.split}
}
