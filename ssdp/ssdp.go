// Package ssdp implements the SSDP Handler (spec.md §4.G): per-interface
// multicast discovery, M-SEARCH replies, and ssdp:alive/ssdp:byebye
// advertisement.
package ssdp

import (
	"bufio"
	"bytes"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"gargoton.petite-maison-orange.fr/eric/devicehost/internal/workerpool"
	"gargoton.petite-maison-orange.fr/eric/devicehost/tree"
)

const (
	multicastAddr = "239.255.255.250:1900"
	productTokens = "Go/1 UPnP/1.0 devicehost/1.0"
)

// Tuple is one advertisable (notification-target, USN) pair enumerated
// from the hosted tree for a single root device, per UDA §1.2.2: the root
// device itself, upnp:rootdevice, every device UDN, every device type, and
// every service type.
type Tuple struct {
	NT  string
	USN string
}

// Handler is the SSDP Handler: one instance serves every bound interface.
type Handler struct {
	store        *tree.Store
	pool         *workerpool.Pool
	log          *logrus.Logger
	maxAge       time.Duration
	advertCount  int
	rng          *rand.Rand
	rngMu        sync.Mutex

	mu    sync.Mutex
	socks []*interfaceSocket
}

type interfaceSocket struct {
	iface   net.IP
	mc      *net.UDPConn
	uc      *net.UDPConn
	baseURL string
}

// New constructs a Handler. maxAge is the cache-control lifetime
// (clamped [30,1800] by the caller); advertCount is the number of
// redundant datagrams per tuple per wave (default 2 if <= 0).
func New(store *tree.Store, pool *workerpool.Pool, log *logrus.Logger, maxAge time.Duration, advertCount int) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if advertCount <= 0 {
		advertCount = 2
	}
	return &Handler{
		store:       store,
		pool:        pool,
		log:         log,
		maxAge:      maxAge,
		advertCount: advertCount,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Bind joins the SSDP multicast group on each given interface and opens a
// unicast socket for replies, starting one reader goroutine per interface.
func (h *Handler) Bind(ifaceIPs []net.IP, baseURLFor func(net.IP) string) error {
	group, err := net.ResolveUDPAddr("udp4", multicastAddr)
	if err != nil {
		return fmt.Errorf("ssdp: resolving multicast group: %w", err)
	}

	for _, ip := range ifaceIPs {
		iface, err := interfaceForIP(ip)
		if err != nil {
			return err
		}
		mc, err := net.ListenMulticastUDP("udp4", iface, group)
		if err != nil {
			return fmt.Errorf("ssdp: joining multicast on %s: %w", ip, err)
		}
		uc, err := net.ListenUDP("udp4", &net.UDPAddr{IP: ip, Port: 0})
		if err != nil {
			mc.Close()
			return fmt.Errorf("ssdp: opening unicast reply socket on %s: %w", ip, err)
		}

		sock := &interfaceSocket{iface: ip, mc: mc, uc: uc, baseURL: baseURLFor(ip)}
		h.mu.Lock()
		h.socks = append(h.socks, sock)
		h.mu.Unlock()

		go h.readLoop(sock)
	}
	return nil
}

// Endpoints returns the unicast reply address this handler is listening on
// for every bound interface, for runtime introspection (SPEC_FULL.md §10's
// bound-endpoint introspection, grounded on the original HDeviceHost's
// HDeviceHostRuntimeStatus::ssdpEndpoints()).
func (h *Handler) Endpoints() []net.UDPAddr {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]net.UDPAddr, 0, len(h.socks))
	for _, s := range h.socks {
		if addr, ok := s.uc.LocalAddr().(*net.UDPAddr); ok {
			out = append(out, *addr)
		}
	}
	return out
}

// Close byebyes every tuple, then closes every socket. Per spec.md §4.I
// teardown order, byebye must be sent before the sockets close.
func (h *Handler) Close() {
	h.SendByeByeAll()

	h.mu.Lock()
	socks := h.socks
	h.socks = nil
	h.mu.Unlock()

	for _, s := range socks {
		s.mc.Close()
		s.uc.Close()
	}
}

func (h *Handler) readLoop(sock *interfaceSocket) {
	buf := make([]byte, 65535)
	for {
		sock.mc.SetReadDeadline(time.Now().Add(30 * time.Second))
		n, peer, err := sock.mc.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}
		msg := append([]byte(nil), buf[:n]...)
		h.pool.Submit(func() { h.handleDatagram(sock, peer, msg) })
	}
}

func (h *Handler) handleDatagram(sock *interfaceSocket, peer *net.UDPAddr, msg []byte) {
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(msg)))
	if err != nil {
		return
	}
	if req.Method != "M-SEARCH" {
		return
	}

	st := req.Header.Get("ST")
	mx := clampMX(req.Header.Get("MX"))

	h.rngMu.Lock()
	delay := time.Duration(h.rng.Float64()*float64(mx)) * time.Second
	h.rngMu.Unlock()

	time.AfterFunc(delay, func() {
		for _, tpl := range h.matchingTuples(st) {
			h.replyMSearch(sock, peer, tpl)
		}
	})
}

func (h *Handler) matchingTuples(st string) []Tuple {
	var out []Tuple
	switch {
	case st == "ssdp:all":
		for root := range h.store.Roots() {
			out = append(out, h.allTuples(root)...)
		}
	case st == "upnp:rootdevice":
		for root := range h.store.Roots() {
			out = append(out, Tuple{NT: "upnp:rootdevice", USN: root.UDN().String() + "::upnp:rootdevice"})
		}
	case strings.HasPrefix(st, "uuid:"):
		udn := tree.UDN(st)
		if d, ok := h.store.FindByUDN(udn, tree.ScopeAll); ok {
			out = append(out, Tuple{NT: d.UDN().String(), USN: d.UDN().String()})
		}
	case strings.HasPrefix(st, "urn:"):
		qt, err := tree.ParseResourceType(st)
		if err != nil {
			return nil
		}
		for root := range h.store.Roots() {
			out = append(out, h.matchingTypeTuples(root, qt)...)
		}
	}
	return out
}

func (h *Handler) matchingTypeTuples(d *tree.Device, qt tree.ResourceType) []Tuple {
	var out []Tuple
	if d.Type().Matches(qt, tree.MatchAtLeast) {
		out = append(out, Tuple{NT: d.Type().String(), USN: d.UDN().String() + "::" + d.Type().String()})
	}
	for svc := range h.store.Services(d) {
		if svc.Type().Matches(qt, tree.MatchAtLeast) {
			out = append(out, Tuple{NT: svc.Type().String(), USN: d.UDN().String() + "::" + svc.Type().String()})
		}
	}
	for child := range h.store.Children(d) {
		out = append(out, h.matchingTypeTuples(child, qt)...)
	}
	return out
}

// allTuples enumerates every advertisable (NT,USN) pair under root, per
// UDA §1.2.2: root-device, device UDN/type for every device, service type
// for every service.
func (h *Handler) allTuples(root *tree.Device) []Tuple {
	var out []Tuple
	out = append(out, Tuple{NT: "upnp:rootdevice", USN: root.UDN().String() + "::upnp:rootdevice"})
	out = append(out, h.deviceTuples(root)...)
	return out
}

func (h *Handler) deviceTuples(d *tree.Device) []Tuple {
	out := []Tuple{
		{NT: d.UDN().String(), USN: d.UDN().String()},
		{NT: d.Type().String(), USN: d.UDN().String() + "::" + d.Type().String()},
	}
	for svc := range h.store.Services(d) {
		out = append(out, Tuple{NT: svc.Type().String(), USN: d.UDN().String() + "::" + svc.Type().String()})
	}
	for child := range h.store.Children(d) {
		out = append(out, h.deviceTuples(child)...)
	}
	return out
}

func (h *Handler) replyMSearch(sock *interfaceSocket, peer *net.UDPAddr, tpl Tuple) {
	location := h.locationFor(sock, tpl)
	msg := "HTTP/1.1 200 OK\r\n" +
		"CACHE-CONTROL: max-age=" + strconv.Itoa(int(h.maxAge/time.Second)) + "\r\n" +
		"DATE: " + time.Now().UTC().Format(http.TimeFormat) + "\r\n" +
		"EXT:\r\n" +
		"LOCATION: " + location + "\r\n" +
		"SERVER: " + productTokens + "\r\n" +
		"ST: " + tpl.NT + "\r\n" +
		"USN: " + tpl.USN + "\r\n\r\n"
	sock.uc.WriteToUDP([]byte(msg), peer)
}

// locationFor resolves the description URL a root device advertises on the
// interface sock is bound to. Locations() and h.socks are both built by
// iterating the same ordered interface list (spec.md §4.C step 3), so the
// two line up positionally; locationForRoot falls back to the first location
// if the socket has since been closed out from under a stale reference.
func (h *Handler) locationFor(sock *interfaceSocket, tpl Tuple) string {
	udn := tpl.USN
	if idx := strings.Index(udn, "::"); idx >= 0 {
		udn = udn[:idx]
	}
	d, ok := h.store.FindByUDN(tree.UDN(udn), tree.ScopeAll)
	if !ok {
		return ""
	}
	return h.locationForRoot(sock, h.store.RootOf(d))
}

func (h *Handler) locationForRoot(sock *interfaceSocket, root *tree.Device) string {
	locs := root.Locations()
	if len(locs) == 0 {
		return ""
	}
	h.mu.Lock()
	idx := -1
	for i, s := range h.socks {
		if s == sock {
			idx = i
			break
		}
	}
	h.mu.Unlock()
	if idx >= 0 && idx < len(locs) {
		return locs[idx]
	}
	return locs[0]
}

// SendAliveAll emits advertCount waves of ssdp:alive for every hosted
// tuple, across every bound interface.
func (h *Handler) SendAliveAll() {
	h.broadcastAll("ssdp:alive")
}

// SendAliveForRoot emits advertCount copies of every tuple under a single
// root device — what the Presence Announcer calls on each root's own
// max-age/2 tick (spec.md §4.H), so two roots with different cache-control
// lifetimes don't share a re-advertisement schedule.
func (h *Handler) SendAliveForRoot(root *tree.Device) {
	h.mu.Lock()
	socks := append([]*interfaceSocket(nil), h.socks...)
	h.mu.Unlock()

	for _, tpl := range h.allTuples(root) {
		for i := 0; i < h.advertCount; i++ {
			for _, sock := range socks {
				h.sendAdvertisement(sock, mustResolveGroup(), "ssdp:alive", tpl, root)
			}
		}
	}
}

func mustResolveGroup() *net.UDPAddr {
	group, _ := net.ResolveUDPAddr("udp4", multicastAddr)
	return group
}

// SendByeByeAll emits one wave of ssdp:byebye for every hosted tuple.
func (h *Handler) SendByeByeAll() {
	n := h.advertCount
	h.advertCount = 1
	h.broadcastAll("ssdp:byebye")
	h.advertCount = n
}

func (h *Handler) broadcastAll(nts string) {
	h.mu.Lock()
	socks := append([]*interfaceSocket(nil), h.socks...)
	h.mu.Unlock()

	group, err := net.ResolveUDPAddr("udp4", multicastAddr)
	if err != nil {
		return
	}

	for root := range h.store.Roots() {
		for _, tpl := range h.allTuples(root) {
			for i := 0; i < h.advertCount; i++ {
				for _, sock := range socks {
					h.sendAdvertisement(sock, group, nts, tpl, root)
				}
			}
		}
	}
}

func (h *Handler) sendAdvertisement(sock *interfaceSocket, group *net.UDPAddr, nts string, tpl Tuple, root *tree.Device) {
	location := h.locationForRoot(sock, root)
	msg := "NOTIFY * HTTP/1.1\r\n" +
		"HOST: 239.255.255.250:1900\r\n" +
		"CACHE-CONTROL: max-age=" + strconv.Itoa(int(h.maxAge/time.Second)) + "\r\n" +
		"LOCATION: " + location + "\r\n" +
		"NT: " + tpl.NT + "\r\n" +
		"NTS: " + nts + "\r\n" +
		"SERVER: " + productTokens + "\r\n" +
		"USN: " + tpl.USN + "\r\n\r\n"
	sock.mc.WriteToUDP([]byte(msg), group)
}

func clampMX(raw string) int {
	mx, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || mx < 1 {
		mx = 1
	}
	if mx > 5 {
		mx = 5
	}
	return mx
}

func interfaceForIP(ip net.IP) (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipNet, ok := addr.(*net.IPNet); ok && ipNet.IP.Equal(ip) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, fmt.Errorf("ssdp: no local interface owns %s", ip)
}
