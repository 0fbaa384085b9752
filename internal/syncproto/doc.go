// Package syncproto implements the cross-device synchronization protocol
// shared by both halves of a phone/watch pair.
//
// One wire codec and one pending-action state machine serve both
// devices, parameterized by whether the device is authoritative. The
// phone (authoritative) is the sole writer of the event log and pushes
// full snapshots after every mutation; the watch issues commands with an
// optimistic single-slot lock that a confirming snapshot, an explicit
// confirmation, or a bounded timeout clears.
//
// The wire format is a flat key-value JSON map. Scalars are embedded
// directly; composite sequences travel as opaque serialized blobs under
// their own keys. A "command" key turns a message into a control
// message. Malformed payloads are rejected whole - the receiver keeps
// its prior state.
package syncproto
