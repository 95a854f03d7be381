//go:build !linux && !darwin

package transport

import "net"

// peerUID is unsupported on this platform: it always returns
// errPeerCredUnsupported, so the server rejects every Unix-domain
// connection, since it cannot verify the peer's UID.
func peerUID(conn net.Conn) (uint32, error) {
	return 0, errPeerCredUnsupported
}
