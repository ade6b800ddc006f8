// Package transport moves messages between device clusters.
//
// Messages crossing a cluster boundary are copied into fixed-capacity
// Bundles. A sending cluster keeps at most one pending Bundle per
// destination in its Outbox and pushes it onto the destination's Inbox
// when it fills or when the sender has nothing better to do. An Inbox is
// a lock-free multi-producer stack: any goroutine may Push, and only the
// goroutine currently owning the destination cluster calls PopAll.
//
// Bundles are recycled through a per-worker LocalPool backed by one
// mutex-protected SharedPool.
package transport
