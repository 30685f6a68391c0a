// Package relay groups WebSocket connections into named rooms and forwards
// sync and presence envelopes between the members of each room.
//
// The package implements:
//   - Registry: lazy room creation and empty-room removal
//   - Room: one document engine, one presence engine, the member set and
//     the origin-excluding broadcast policy
//   - Client: a member connection with a non-blocking outbound queue
//   - Handler: connection admission and the read/write pumps
//
// Rooms are independent: operations on one room never block another. All
// mutations on a single room are serialized, and a broadcast never echoes
// back to the connection that caused it.
package relay
