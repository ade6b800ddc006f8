package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownType is returned for a graph or device type id the
	// provider does not know.
	ErrUnknownType = errors.New("unknown type")
	// ErrSizeMismatch is returned when a payload does not match the size
	// its descriptor declares.
	ErrSizeMismatch = errors.New("payload size mismatch")
	// ErrSendIndex is returned for malformed send indices on an output port.
	ErrSendIndex = errors.New("invalid send index")
	// ErrGraphState is returned when loading callbacks arrive out of order
	// or reference devices and pins that do not exist.
	ErrGraphState = errors.New("invalid graph load sequence")
)

// BuildError is a fatal error detected while loading a graph instance.
type BuildError struct {
	Op   string // loading callback that failed
	ID   string // graph, device or edge identifier
	Type string // type id involved, if any
	Err  error
}

func (e *BuildError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Type != "" {
		return fmt.Sprintf("%s %s (type %s): %v", e.Op, e.ID, e.Type, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }
