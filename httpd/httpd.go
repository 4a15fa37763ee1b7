// Package httpd implements the HTTP Server (spec.md §4.D): it serves
// device/service descriptions and icons, dispatches SOAP control POSTs,
// and handles GENA SUBSCRIBE/UNSUBSCRIBE — the last of which needs
// go-chi/chi/v5 because net/http.ServeMux cannot route non-standard HTTP
// verbs, and GENA's SUBSCRIBE/UNSUBSCRIBE are exactly that.
package httpd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"gargoton.petite-maison-orange.fr/eric/devicehost/gena"
	"gargoton.petite-maison-orange.fr/eric/devicehost/tree"
)

type document struct {
	contentType string
	data        []byte
}

// Server is the HTTP Server: one chi router bound to every configured
// interface, each on an OS-assigned port.
type Server struct {
	router chi.Router
	store  *tree.Store
	mgr    *gena.Manager
	log    *logrus.Logger

	docsMu sync.RWMutex
	docs   map[string]document

	mu      sync.Mutex
	servers []*http.Server
	ports   map[string]int
	addrs   []net.TCPAddr
}

func New(store *tree.Store, mgr *gena.Manager, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		store: store,
		mgr:   mgr,
		log:   log,
		docs:  make(map[string]document),
		ports: make(map[string]int),
	}

	r := chi.NewRouter()
	r.Method(http.MethodGet, "/*", http.HandlerFunc(s.handleGet))
	r.Method(http.MethodHead, "/*", http.HandlerFunc(s.handleGet))
	r.Method(http.MethodPost, "/*", http.HandlerFunc(s.handleControl))
	r.Method("SUBSCRIBE", "/*", http.HandlerFunc(s.handleSubscribe))
	r.Method("UNSUBSCRIBE", "/*", http.HandlerFunc(s.handleUnsubscribe))
	s.router = r

	return s
}

// ServeHTTP lets Server itself act as an http.Handler, primarily for tests
// that exercise routing without a bound socket.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RegisterDocument makes data servable via GET/HEAD at path (e.g.
// "/uuid:.../description.xml").
func (s *Server) RegisterDocument(path, contentType string, data []byte) {
	s.docsMu.Lock()
	defer s.docsMu.Unlock()
	s.docs[path] = document{contentType: contentType, data: data}
}

// Bind starts listening on each ip with an OS-assigned port and serves the
// router on it. Returns once every listener is accepting connections.
func (s *Server) Bind(ips []net.IP) error {
	for _, ip := range ips {
		ln, err := net.Listen("tcp", net.JoinHostPort(ip.String(), "0"))
		if err != nil {
			return fmt.Errorf("httpd: binding %s: %w", ip, err)
		}
		addr := *ln.Addr().(*net.TCPAddr)
		port := addr.Port

		srv := &http.Server{Handler: s.router}
		s.mu.Lock()
		s.servers = append(s.servers, srv)
		s.ports[ip.String()] = port
		s.addrs = append(s.addrs, addr)
		s.mu.Unlock()

		go func() {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				s.log.WithError(err).Warn("httpd: listener stopped")
			}
		}()
	}
	return nil
}

// Port returns the bound port for a given interface IP, for computing
// locations/base URLs before the Tree Builder runs.
func (s *Server) Port(ip net.IP) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.ports[ip.String()]
	return p, ok
}

// Endpoints returns the IP:port address this server is listening on for
// every bound interface, for runtime introspection (SPEC_FULL.md §10's
// bound-endpoint introspection, grounded on the original HDeviceHost's
// HDeviceHostRuntimeStatus::httpEndpoints()).
func (s *Server) Endpoints() []net.TCPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]net.TCPAddr(nil), s.addrs...)
}

// Close gracefully shuts down every bound listener within the given grace
// period.
func (s *Server) Close(grace time.Duration) {
	s.mu.Lock()
	servers := s.servers
	s.servers = nil
	s.addrs = nil
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	for _, srv := range servers {
		srv.Shutdown(ctx)
	}
}
