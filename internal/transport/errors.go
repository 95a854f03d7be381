package transport

import "errors"

var (
	errNotUnixConn          = errors.New("transport: not a unix domain connection")
	errPeerCredUnsupported  = errors.New("transport: peer credential check unsupported on this platform")
	errAuthTimeout          = errors.New("transport: first frame was not Auth within the handshake window")
	errAuthRejected         = errors.New("transport: auth token mismatch")
	errUnexpectedFirstFrame = errors.New("transport: first frame must be Auth")
	errNotConnected         = errors.New("transport: not connected")
	errCallTimeout          = errors.New("transport: call timed out waiting for reply")
)
