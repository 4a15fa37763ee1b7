package gena

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/beevik/etree"
	"github.com/sirupsen/logrus"

	"gargoton.petite-maison-orange.fr/eric/devicehost/internal/workerpool"
	"gargoton.petite-maison-orange.fr/eric/devicehost/tree"
)

const propertySetNS = "urn:schemas-upnp-org:event-1-0"

// deliveryQueue is one subscriber's FIFO of pending NOTIFY bodies. A single
// worker goroutine drains it so deliveries to that callback are strictly
// ordered, per spec.md §4.F.
type deliveryQueue struct {
	mu      sync.Mutex
	pending [][]byte
	running bool
}

// Notifier is the Event Notifier (spec.md §4.F): it turns a service's
// changed-variable set into property-set XML and hands one job per
// subscriber to the shared worker pool, while a per-subscriber queue keeps
// deliveries to the same callback from racing each other.
type Notifier struct {
	mgr  *Manager
	pool *workerpool.Pool
	log  *logrus.Logger

	client *http.Client

	mu     sync.Mutex
	queues map[*Subscription]*deliveryQueue
}

func NewNotifier(mgr *Manager, pool *workerpool.Pool, log *logrus.Logger) *Notifier {
	return &Notifier{
		mgr:    mgr,
		pool:   pool,
		log:    log,
		client: &http.Client{Timeout: 30 * time.Second},
		queues: make(map[*Subscription]*deliveryQueue),
	}
}

// OnChange is the tree.ChangeListener the Host Orchestrator wires onto every
// hosted service: it is called with the changed evented variables, in
// declaration order, after an action invocation, and fans a NOTIFY out to
// every current subscriber.
func (n *Notifier) OnChange(svc *tree.Service, changed []tree.NamedValue) {
	if len(changed) == 0 {
		return
	}
	body := buildPropertySet(changed)
	for _, sub := range n.mgr.SubscribersOf(svc) {
		n.enqueue(sub, body)
	}
}

// deliverInitial enqueues the SEQ:0 NOTIFY carrying every evented variable,
// synchronously relative to Subscribe's caller (the job lands in the
// per-subscriber queue before Subscribe returns).
func (n *Notifier) deliverInitial(svc *tree.Service, sub *Subscription) {
	body := buildPropertySet(svc.EventedSnapshot())
	n.enqueue(sub, body)
}

func (n *Notifier) enqueue(sub *Subscription, body []byte) {
	if sub.State() == StateExpired {
		return
	}

	n.mu.Lock()
	q, ok := n.queues[sub]
	if !ok {
		q = &deliveryQueue{}
		n.queues[sub] = q
	}
	n.mu.Unlock()

	q.mu.Lock()
	q.pending = append(q.pending, body)
	start := !q.running
	q.running = true
	q.mu.Unlock()

	if start {
		n.pool.Submit(func() { n.drain(sub, q) })
	}
}

func (n *Notifier) drain(sub *Subscription, q *deliveryQueue) {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		body := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		n.deliverOne(sub, body)
	}
}

// deliverOne sends body to every callback of sub, at the current seq, and
// advances seq exactly once regardless of whether any delivery succeeded —
// "a subscriber that returns an error still advances its sequence" (spec.md
// §4.F).
func (n *Notifier) deliverOne(sub *Subscription, body []byte) {
	if sub.State() == StateExpired {
		return
	}
	seq := sub.nextSeq()

	for _, cb := range sub.Callbacks() {
		if err := n.send(cb, sub, seq, body); err != nil {
			n.log.WithError(err).WithFields(logrus.Fields{"sid": sub.sid, "callback": cb}).
				Warn("gena: NOTIFY delivery failed, subscriber retained")
		}
	}
}

func (n *Notifier) send(callback string, sub *Subscription, seq uint32, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "NOTIFY", callback, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("NT", "upnp:event")
	req.Header.Set("NTS", "upnp:propchange")
	req.Header.Set("SID", sub.sid)
	req.Header.Set("SEQ", strconv.FormatUint(uint64(seq), 10))

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func (n *Notifier) dropQueue(sub *Subscription) {
	n.mu.Lock()
	delete(n.queues, sub)
	n.mu.Unlock()
}

func buildPropertySet(vars []tree.NamedValue) []byte {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0"`)
	root := doc.CreateElement("e:propertyset")
	root.CreateAttr("xmlns:e", propertySetNS)
	for _, nv := range vars {
		prop := root.CreateElement("e:property")
		prop.CreateElement(nv.Name).SetText(nv.Value)
	}
	doc.Indent(0)
	data, _ := doc.WriteToBytes()
	return data
}
