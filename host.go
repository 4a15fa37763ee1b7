// Package devicehost wires the Device Tree Store, Description Provider,
// Tree Builder, HTTP Server, Subscription Manager, Event Notifier, SSDP
// Handler, and Presence Announcer into the Host Orchestrator (spec.md
// §4.I): the two-phase init/quit surface applications use to stand up a
// UPnP device.
package devicehost

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gargoton.petite-maison-orange.fr/eric/devicehost/announce"
	"gargoton.petite-maison-orange.fr/eric/devicehost/builder"
	"gargoton.petite-maison-orange.fr/eric/devicehost/config"
	"gargoton.petite-maison-orange.fr/eric/devicehost/description"
	"gargoton.petite-maison-orange.fr/eric/devicehost/gena"
	"gargoton.petite-maison-orange.fr/eric/devicehost/httpd"
	"gargoton.petite-maison-orange.fr/eric/devicehost/internal/errs"
	"gargoton.petite-maison-orange.fr/eric/devicehost/internal/netutils"
	"gargoton.petite-maison-orange.fr/eric/devicehost/internal/workerpool"
	"gargoton.petite-maison-orange.fr/eric/devicehost/ssdp"
	"gargoton.petite-maison-orange.fr/eric/devicehost/tree"
)

// State is the Host Orchestrator's lifecycle state (spec.md §4.I).
type State int

const (
	Uninitialised State = iota
	Initialising
	Initialised
	Exiting
)

func (s State) String() string {
	switch s {
	case Initialising:
		return "Initialising"
	case Initialised:
		return "Initialised"
	case Exiting:
		return "Exiting"
	default:
		return "Uninitialised"
	}
}

// Config bundles everything Host needs beyond the YAML-loadable
// config.Config: the description provider and the application's device
// factory (spec.md §6's deviceFactory option).
type Config struct {
	config.Config
	Provider           description.Provider
	Factory            builder.Factory
	SubscriptionPolicy gena.Policy
}

// Host is the Host Orchestrator.
type Host struct {
	mu    sync.Mutex
	state State

	cfg Config
	log *logrus.Logger

	store     *tree.Store
	pool      *workerpool.Pool
	mgr       *gena.Manager
	httpSrv   *httpd.Server
	ssdpH     *ssdp.Handler
	announcer *announce.Announcer

	root *tree.Device

	lastErrKind errs.Kind
	lastErrMsg  string
}

// New constructs a Host in the Uninitialised state. Nothing is bound or
// started until Init is called.
func New(cfg Config, log *logrus.Logger) *Host {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Host{cfg: cfg, log: log, store: tree.NewStore()}
}

// Store exposes the Device Tree Store for read access (e.g. by a test or
// an embedding application that wants to inspect hosted devices).
func (h *Host) Store() *tree.Store { return h.store }

// State returns the current lifecycle state.
func (h *Host) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// LastError and LastErrorDescription surface the host's first-error-wins
// error report (spec.md §4.I, §7).
func (h *Host) LastError() errs.Kind         { return h.lastErrKind }
func (h *Host) LastErrorDescription() string { return h.lastErrMsg }

// SSDPEndpoints returns the bound SSDP unicast-reply address for every
// hosted interface, or empty before Init or after Quit (SPEC_FULL.md §10's
// runtime-status introspection, grounded on the original HDeviceHost's
// HDeviceHostRuntimeStatus::ssdpEndpoints()).
func (h *Host) SSDPEndpoints() []net.UDPAddr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ssdpH == nil {
		return nil
	}
	return h.ssdpH.Endpoints()
}

// HTTPEndpoints returns the bound HTTP address for every hosted interface,
// or nil before Init or after Quit (SPEC_FULL.md §10's runtime-status
// introspection, grounded on the original HDeviceHost's
// HDeviceHostRuntimeStatus::httpEndpoints()). h.httpSrv stays non-nil after
// Quit, but Endpoints returns nil then since Close clears its recorded
// addresses.
func (h *Host) HTTPEndpoints() []net.TCPAddr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.httpSrv == nil {
		return nil
	}
	return h.httpSrv.Endpoints()
}

func (h *Host) fail(kind errs.Kind, err error) error {
	if h.lastErrMsg == "" {
		h.lastErrKind = kind
		h.lastErrMsg = err.Error()
	}
	return err
}

// Init brings the host up: bind HTTP → build tree → bind SSDP per
// interface → start announcer → mark Initialised. A second call while
// Initialised returns AlreadyInitialized without side effects.
func (h *Host) Init() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == Initialised || h.state == Initialising {
		return h.fail(errs.AlreadyInitialized, errs.New(errs.AlreadyInitialized, "host already initialised"))
	}
	h.state = Initialising

	ifaces, err := h.resolveInterfaces()
	if err != nil {
		h.state = Uninitialised
		return h.fail(errs.InvalidConfiguration, err)
	}
	ips := make([]net.IP, len(ifaces))
	for i, bi := range ifaces {
		ips[i] = bi.IP
	}

	h.pool = workerpool.New(h.cfg.ThreadPoolSize)
	h.mgr = gena.NewManager(h.pool, h.log, h.cfg.SubscriptionPolicy)
	h.httpSrv = httpd.New(h.store, h.mgr, h.log)

	// HTTP must bind first: locations embedded in the description need the
	// OS-assigned port, so the Tree Builder runs after this, not before —
	// a necessary reordering of spec.md §4.I's "build tree → bind HTTP"
	// sequence to accommodate port 0 binding (see DESIGN.md).
	if err := h.httpSrv.Bind(ips); err != nil {
		h.state = Uninitialised
		return h.fail(errs.Communications, err)
	}

	baseURLs := make([]string, len(ips))
	for i, ip := range ips {
		port, _ := h.httpSrv.Port(ip)
		baseURLs[i] = fmt.Sprintf("http://%s", net.JoinHostPort(ip.String(), fmt.Sprintf("%d", port)))
	}

	result, err := builder.Build(h.store, builder.Config{
		DescriptionPath: h.cfg.PathToDeviceDescription,
		Provider:        h.cfg.Provider,
		BaseURLs:        baseURLs,
		Factory:         h.cfg.Factory,
		StrictParsing:   true,
	})
	if err != nil {
		h.httpSrv.Close(5 * time.Second)
		h.state = Uninitialised
		return h.fail(errs.KindOf(err), err)
	}
	h.root = result.Device

	for path, doc := range result.Documents {
		h.httpSrv.RegisterDocument(path, doc.ContentType, doc.Data)
	}

	for svc := range h.store.Services(h.root) {
		svc.SetChangeListener(h.mgr.Notifier().OnChange)
	}
	h.wireEmbeddedListeners(h.root)

	maxAge := h.cfg.MaxAge()
	h.ssdpH = ssdp.New(h.store, h.pool, h.log, maxAge, h.cfg.IndividualAdvertisementCount)
	ipIndex := 0
	if err := h.ssdpH.Bind(ips, func(net.IP) string {
		loc := baseURLs[ipIndex%len(baseURLs)]
		ipIndex++
		return loc
	}); err != nil {
		h.httpSrv.Close(5 * time.Second)
		h.state = Uninitialised
		return h.fail(errs.Communications, err)
	}

	h.announcer = announce.New(h.ssdpH, h.log)
	h.announcer.Start()
	if err := h.announcer.Schedule(h.root, maxAge); err != nil {
		h.state = Uninitialised
		return h.fail(errs.Communications, err)
	}

	h.state = Initialised
	return nil
}

func (h *Host) wireEmbeddedListeners(d *tree.Device) {
	for child := range h.store.Children(d) {
		for svc := range h.store.Services(child) {
			svc.SetChangeListener(h.mgr.Notifier().OnChange)
		}
		h.wireEmbeddedListeners(child)
	}
}

func (h *Host) resolveInterfaces() ([]netutils.BoundInterface, error) {
	if len(h.cfg.NetworkInterfaces) > 0 {
		return netutils.ResolveInterfaces(h.cfg.NetworkInterfaces)
	}
	return netutils.DefaultInterfaces()
}

// Quit tears the host down in strictly reversed init order: cancel
// announcer timers → send ssdp:byebye → close SSDP sockets → close HTTP →
// drain the worker pool. Idempotent: a second call is a no-op.
func (h *Host) Quit() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != Initialised {
		return nil
	}
	h.state = Exiting

	if h.announcer != nil {
		h.announcer.Stop()
	}
	if h.ssdpH != nil {
		h.ssdpH.Close()
	}
	if h.httpSrv != nil {
		h.httpSrv.Close(5 * time.Second)
	}
	if h.pool != nil {
		h.pool.DrainWithin(5 * time.Second)
	}

	h.state = Uninitialised
	return nil
}
