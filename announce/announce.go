// Package announce implements the Presence Announcer (spec.md §4.H): a
// per-root-device re-advertisement schedule at half its cache-control
// max-age, so the host always re-asserts presence before a control
// point's cached advertisement would expire.
package announce

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"gargoton.petite-maison-orange.fr/eric/devicehost/ssdp"
	"gargoton.petite-maison-orange.fr/eric/devicehost/tree"
)

// Announcer schedules one re-advertisement tick per root device.
// robfig/cron is used rather than a single fixed ticker because each root
// can carry a distinct cacheControlMaxAge and roots are added over the
// host's lifetime — cron.AddFunc/Remove gives per-root interval entries
// without hand-rolling a timer wheel.
type Announcer struct {
	cron    *cron.Cron
	handler *ssdp.Handler
	log     *logrus.Logger

	mu      sync.Mutex
	entries map[tree.UDN]cron.EntryID
}

func New(handler *ssdp.Handler, log *logrus.Logger) *Announcer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Announcer{
		cron:    cron.New(),
		handler: handler,
		log:     log,
		entries: make(map[tree.UDN]cron.EntryID),
	}
}

// Start begins running scheduled ticks in the background.
func (a *Announcer) Start() { a.cron.Start() }

// Schedule registers root's re-advertisement tick at maxAge/2 and sends one
// initial ssdp:alive wave immediately.
func (a *Announcer) Schedule(root *tree.Device, maxAge time.Duration) error {
	interval := maxAge / 2
	if interval < time.Second {
		interval = time.Second
	}
	spec := fmt.Sprintf("@every %ds", int(interval/time.Second))

	id, err := a.cron.AddFunc(spec, func() {
		a.handler.SendAliveForRoot(root)
	})
	if err != nil {
		return fmt.Errorf("announce: scheduling %s: %w", root.UDN(), err)
	}

	a.mu.Lock()
	a.entries[root.UDN()] = id
	a.mu.Unlock()

	a.handler.SendAliveForRoot(root)
	a.log.WithFields(logrus.Fields{"udn": root.UDN(), "interval": interval}).Debug("announce: scheduled re-advertisement")
	return nil
}

// Cancel stops root's re-advertisement tick.
func (a *Announcer) Cancel(udn tree.UDN) {
	a.mu.Lock()
	id, ok := a.entries[udn]
	delete(a.entries, udn)
	a.mu.Unlock()
	if ok {
		a.cron.Remove(id)
	}
}

// Stop cancels every scheduled tick. Callers must do this before sending
// byebye and closing SSDP sockets (spec.md §4.H: "Timers are cancelled on
// quit before byebye is sent").
func (a *Announcer) Stop() {
	ctx := a.cron.Stop()
	<-ctx.Done()

	a.mu.Lock()
	a.entries = make(map[tree.UDN]cron.EntryID)
	a.mu.Unlock()
}
