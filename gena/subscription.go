// Package gena implements the Subscription Manager and Event Notifier
// (spec.md §4.E, §4.F): the GENA eventing half of the device host.
package gena

import (
	"strconv"
	"sync"
	"time"
)

// State is a subscription's position in the GENA lifecycle (spec.md §4.E).
type State int

const (
	StateActive State = iota
	StateExpiring
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateExpiring:
		return "expiring"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

const (
	MinTimeout = 30 * time.Second
	MaxTimeout = 1800 * time.Second
)

// Subscription is one GENA subscriber on one service.
type Subscription struct {
	mu sync.Mutex

	sid       string
	callbacks []string
	infinite  bool
	timeout   time.Duration
	state     State
	seq       uint32 // next seq to use; 0 is reserved for the initial NOTIFY

	expiresAt time.Time
	timer     *time.Timer
}

// SID returns the subscription's identifier, "uuid:<uuid>".
func (s *Subscription) SID() string { return s.sid }

func (s *Subscription) Callbacks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.callbacks...)
}

func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TimeoutHeader returns the TIMEOUT header value to echo back: "infinite" or
// "Second-<n>".
func (s *Subscription) TimeoutHeader() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.infinite {
		return "infinite"
	}
	return "Second-" + strconv.Itoa(int(s.timeout/time.Second))
}

// nextSeq returns the seq to use for the next NOTIFY and advances the
// counter, wrapping per spec.md §4.E/§8: 0 is reserved for the initial
// NOTIFY, and the value after 0xFFFFFFFF is 1.
func (s *Subscription) nextSeq() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.seq
	if s.seq == 0xFFFFFFFF {
		s.seq = 1
	} else {
		s.seq++
	}
	return v
}
