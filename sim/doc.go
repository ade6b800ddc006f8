// Package sim provides the device graph model run by the POEMS engine.
//
// # Reading Guide
//
// Start with these three files to understand the model:
//   - handler.go: the DeviceType contract (init, ready-to-send, send or compute, receive, hardware idle)
//   - builder.go: graph loading callbacks that validate payloads and build a Topology
//   - topology.go: devices, output ports and edges, and the one-time cluster assignment
//
// # Architecture
//
// The sim package defines the model; the execution machinery lives in
// sub-packages:
//   - sim/partition/: cluster assignment (random sharding, graph partitioning)
//   - sim/transport/: message bundles, lock-free inboxes, outboxes, bundle pools
//   - sim/cluster/: cluster stepping, the worker engine, and idle detection
//   - sim/workload/: built-in device types and graph generators
//   - sim/trace/: idle verification trace recording
//
// # Data Layout
//
// Device and edge data are raw little-endian byte buffers accessed through
// View: a properties region padded to PayloadAlignment followed by a state
// region. Handlers read and write fields at fixed offsets through Bytes.
// After ApplyAssignment each cluster's device buffers share one arena.
//
// # Threading
//
// Building is single-threaded. During a run each cluster is stepped by one
// goroutine at a time, so handlers never need locks for device or edge
// data. Env.Exit is the only handler call with cross-goroutine effect.
package sim
