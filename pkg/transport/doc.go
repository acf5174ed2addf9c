// Package transport implements the websocket client connection to the
// simulation peer.
//
// A Connection dials the peer's websocket endpoint, reads text frames
// on a dedicated goroutine, and delivers them to a ConnectionHandler.
// Writes are serialized and safe for concurrent use. Liveness is
// maintained with websocket ping/pong; a silent peer is force-closed
// after the pong timeout.
package transport
