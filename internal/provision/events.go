package provision

import (
	"net/netip"
	"sync"
)

// EventKind is the closed set of notifications the supervisor emits.
type EventKind int

const (
	// EventAddrAcquired carries the address the device is reachable on,
	// whether the portal is captive, and the active SSID.
	EventAddrAcquired EventKind = iota
	// EventAddrLost means the previously reported address is gone.
	EventAddrLost
	EventStationConnected
	EventStationDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventAddrAcquired:
		return "addr_acquired"
	case EventAddrLost:
		return "addr_lost"
	case EventStationConnected:
		return "station_connected"
	case EventStationDisconnected:
		return "station_disconnected"
	}
	return "unknown"
}

// Event is one supervisor notification. Addr, Captive and SSID are set
// for the address events and zero otherwise.
type Event struct {
	Kind    EventKind
	Addr    netip.Addr
	Captive bool
	SSID    string
}

// Notifier fans events out to subscribers. Cancelled subscriptions are
// silently skipped; publishing to zero subscribers is a no-op.
type Notifier struct {
	mu   sync.Mutex
	subs []*Subscription
}

// Subscription is one registered observer callback.
type Subscription struct {
	fn        func(Event)
	cancelled bool
}

// Subscribe registers fn for all future events. A nil fn is accepted and
// never invoked.
func (n *Notifier) Subscribe(fn func(Event)) *Subscription {
	s := &Subscription{fn: fn}
	n.mu.Lock()
	n.subs = append(n.subs, s)
	n.mu.Unlock()
	return s
}

// Cancel drops the subscription. Safe to call more than once; the
// callback will not fire for events published after Cancel returns.
func (n *Notifier) Cancel(s *Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, sub := range n.subs {
		if sub == s {
			sub.cancelled = true
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			return
		}
	}
}

func (n *Notifier) publish(ev Event) {
	n.mu.Lock()
	subs := make([]*Subscription, 0, len(n.subs))
	for _, s := range n.subs {
		if !s.cancelled && s.fn != nil {
			subs = append(subs, s)
		}
	}
	n.mu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}
