package gena

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gargoton.petite-maison-orange.fr/eric/devicehost/internal/errs"
	"gargoton.petite-maison-orange.fr/eric/devicehost/internal/workerpool"
	"gargoton.petite-maison-orange.fr/eric/devicehost/tree"
)

// Policy decides whether to accept a subscribe/renew request. peer is the
// requesting client's address.
type Policy func(svc *tree.Service, peer string, isRenewal bool) bool

// Manager is the Subscription Manager (spec.md §4.E): a table of
// subscriptions keyed by SID, indexed per service for event fan-out.
type Manager struct {
	mu        sync.RWMutex
	bySID     map[string]*Subscription
	byService map[*tree.Service]map[string]*Subscription

	pool     *workerpool.Pool
	notifier *Notifier
	policy   Policy
	log      *logrus.Logger
}

// NewManager constructs a Manager. pool is used for outbound NOTIFY
// deliveries; policy may be nil to accept every subscription request.
func NewManager(pool *workerpool.Pool, log *logrus.Logger, policy Policy) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if policy == nil {
		policy = func(*tree.Service, string, bool) bool { return true }
	}
	m := &Manager{
		bySID:     make(map[string]*Subscription),
		byService: make(map[*tree.Service]map[string]*Subscription),
		pool:      pool,
		policy:    policy,
		log:       log,
	}
	m.notifier = NewNotifier(m, pool, log)
	return m
}

// Notifier returns the Event Notifier wired to this Manager.
func (m *Manager) Notifier() *Notifier { return m.notifier }

// Subscribe creates a new subscription (spec.md §4.E "create"). timeout<=0
// means infinite. It synchronously enqueues the initial NOTIFY (SEQ=0)
// before returning, per spec.md §9's ordering guarantee.
func (m *Manager) Subscribe(svc *tree.Service, peer string, callbacks []string, timeout time.Duration) (*Subscription, error) {
	if len(callbacks) == 0 {
		return nil, errs.New(errs.InvalidConfiguration, "SUBSCRIBE requires at least one CALLBACK url")
	}
	if !m.policy(svc, peer, false) {
		return nil, errs.New(errs.ActionFailed, "subscription policy refused %s", peer)
	}

	sub := &Subscription{
		sid:       "uuid:" + uuid.NewString(),
		callbacks: callbacks,
		state:     StateActive,
	}
	clampTimeout(sub, timeout)
	sub.expiresAt = time.Now().Add(sub.timeout)

	m.mu.Lock()
	if _, exists := m.bySID[sub.sid]; exists {
		m.mu.Unlock()
		return nil, errs.New(errs.Undefined, "SID collision, retry")
	}
	m.bySID[sub.sid] = sub
	if m.byService[svc] == nil {
		m.byService[svc] = make(map[string]*Subscription)
	}
	m.byService[svc][sub.sid] = sub
	m.mu.Unlock()

	sub.timer = time.AfterFunc(sub.timeout, func() { m.expire(svc, sub) })

	// Initial NOTIFY carries SEQ:0 and is delivered synchronously relative
	// to the caller's view: the job is enqueued before Subscribe returns,
	// and the per-subscriber FIFO (see Notifier) guarantees it is sent
	// before any change-driven NOTIFY queued afterwards.
	m.notifier.deliverInitial(svc, sub)

	return sub, nil
}

// Renew resets a subscription's expiry deadline without touching seq or
// resending the initial NOTIFY (spec.md §4.E "renew").
func (m *Manager) Renew(sid string, peer string, timeout time.Duration) (*Subscription, error) {
	m.mu.RLock()
	sub, ok := m.bySID[sid]
	m.mu.RUnlock()
	if !ok {
		return nil, errs.New(errs.NotFound, "unknown SID %s", sid)
	}

	svc, ok := m.serviceOf(sub)
	if !ok {
		return nil, errs.New(errs.NotFound, "unknown SID %s", sid)
	}
	if !m.policy(svc, peer, true) {
		return nil, errs.New(errs.ActionFailed, "subscription policy refused renewal for %s", peer)
	}

	sub.mu.Lock()
	if sub.state == StateExpired {
		sub.mu.Unlock()
		return nil, errs.New(errs.NotFound, "SID %s already expired", sid)
	}
	clampTimeout(sub, timeout)
	sub.expiresAt = time.Now().Add(sub.timeout)
	sub.state = StateActive
	if sub.timer != nil {
		sub.timer.Stop()
	}
	sub.timer = time.AfterFunc(sub.timeout, func() { m.expire(svc, sub) })
	sub.mu.Unlock()

	return sub, nil
}

// Unsubscribe removes a subscription immediately (spec.md §4.E
// "unsubscribe"): O(1) table removal, timer cancelled, queue dropped.
func (m *Manager) Unsubscribe(sid string) error {
	m.mu.Lock()
	sub, ok := m.bySID[sid]
	if !ok {
		m.mu.Unlock()
		return errs.New(errs.NotFound, "unknown SID %s", sid)
	}
	delete(m.bySID, sid)
	for _, subs := range m.byService {
		delete(subs, sid)
	}
	m.mu.Unlock()

	sub.mu.Lock()
	sub.state = StateExpired
	if sub.timer != nil {
		sub.timer.Stop()
	}
	sub.mu.Unlock()

	m.notifier.dropQueue(sub)
	return nil
}

// Lookup resolves a SID to its subscription, for UNSUBSCRIBE/renewal header
// validation in the HTTP layer.
func (m *Manager) Lookup(sid string) (*Subscription, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.bySID[sid]
	return sub, ok
}

// SubscribersOf returns every active subscription on svc, for the Event
// Notifier to fan out a property-set change to.
func (m *Manager) SubscribersOf(svc *tree.Service) []*Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	subs := m.byService[svc]
	out := make([]*Subscription, 0, len(subs))
	for _, s := range subs {
		out = append(out, s)
	}
	return out
}

// Count reports the number of live subscriptions, for tests asserting
// table cleanup (spec.md §8 round-trip property).
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bySID)
}

func (m *Manager) serviceOf(sub *Subscription) (*tree.Service, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for svc, subs := range m.byService {
		if _, ok := subs[sub.sid]; ok {
			return svc, true
		}
	}
	return nil, false
}

func (m *Manager) expire(svc *tree.Service, sub *Subscription) {
	sub.mu.Lock()
	if sub.state == StateExpired || sub.infinite {
		sub.mu.Unlock()
		return
	}
	sub.state = StateExpired
	sub.mu.Unlock()

	m.mu.Lock()
	delete(m.bySID, sub.sid)
	if subs := m.byService[svc]; subs != nil {
		delete(subs, sub.sid)
	}
	m.mu.Unlock()

	m.notifier.dropQueue(sub)
	m.log.WithField("sid", sub.sid).Debug("gena: subscription expired")
}

func clampTimeout(sub *Subscription, requested time.Duration) {
	if requested <= 0 {
		sub.infinite = true
		sub.timeout = MaxTimeout
		return
	}
	sub.infinite = false
	switch {
	case requested < MinTimeout:
		sub.timeout = MinTimeout
	case requested > MaxTimeout:
		sub.timeout = MaxTimeout
	default:
		sub.timeout = requested
	}
}
