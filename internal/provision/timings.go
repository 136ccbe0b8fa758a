package provision

import "time"

// Timings are the delays and poll intervals the state machine uses.
// Reconnect backoff is a fixed delay, not exponential.
type Timings struct {
	// SettleDelay is waited after bringing up access-point mode before the
	// hello frame is sent, so fast-arriving peer bytes are not lost.
	SettleDelay time.Duration
	// HelloTimeout bounds the hello send; a missing peer must not hang the
	// device.
	HelloTimeout time.Duration
	// LinkPollInterval paces both the link-up wait and the post-connect
	// link monitor.
	LinkPollInterval time.Duration
	// AddrPollInterval paces the wait for an assigned address.
	AddrPollInterval time.Duration
	// AddrWaitTimeout bounds the address wait. Zero disables the deadline
	// and waits forever, matching the device's historical patience.
	AddrWaitTimeout time.Duration
	// ReconnectDelay is the fixed backoff between connect attempts.
	ReconnectDelay time.Duration
}

// DefaultTimings mirrors the timing constants the firmware shipped with.
func DefaultTimings() Timings {
	return Timings{
		SettleDelay:      2 * time.Second,
		HelloTimeout:     time.Second,
		LinkPollInterval: 500 * time.Millisecond,
		AddrPollInterval: 250 * time.Millisecond,
		AddrWaitTimeout:  0,
		ReconnectDelay:   time.Second,
	}
}
