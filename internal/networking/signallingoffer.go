package networking

import "github.com/pion/webrtc/v4"

// The body a listener posts to the monitor to start receiving the mix.
type ListenRequest struct {
	// Free form name of the listener, only used in logs.
	Listener string

	WebRTCSessionDescription webrtc.SessionDescription
}
