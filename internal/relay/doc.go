// Package relay carries sync payloads between the phone and the watch.
//
// The phone side (Server) pushes a full snapshot after every mutation
// over two channels: an instantaneous websocket send to every currently
// connected peer (fire-and-forget, drops when a peer is slow) and an
// unconditional write to a durable last-write-wins context slot that a
// reconnecting peer reads lazily. Dropped messages are never retried;
// the durable slot and the requestSync command are the recovery path.
//
// The watch side (Client) connects, seeds its cache from the durable
// slot, requests a fresh snapshot, and issues commands guarded by the
// syncproto pending-action session.
package relay
