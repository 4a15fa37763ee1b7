package tree

import (
	"iter"
	"sync"
	"sync/atomic"

	"gargoton.petite-maison-orange.fr/eric/devicehost/internal/errs"
)

// Scope narrows Store.FindByUDN to root devices, embedded devices, or both.
type Scope int

const (
	ScopeAll Scope = iota
	ScopeRoot
	ScopeEmbedded
)

// DeviceInfo carries the fields the Tree Builder parses out of a device
// description, used to materialise a tree.Device via Store.NewDevice.
type DeviceInfo struct {
	UDN              UDN
	Type             ResourceType
	FriendlyName     string
	Manufacturer     string
	ManufacturerURL  string
	ModelDescription string
	ModelName        string
	ModelNumber      string
	ModelURL         string
	SerialNumber     string
	PresentationURL  string
	Icons            []Icon
}

type serviceRef struct {
	device  nodeID
	service nodeID
}

// Store is the Device Tree Store (spec.md §4.A): a read-mostly arena of
// devices and services, built once by the Tree Builder and then queried
// concurrently by the HTTP, SSDP, and GENA components.
type Store struct {
	mu sync.RWMutex

	nextID   uint32
	devices  map[nodeID]*Device
	services map[nodeID]*Service
	roots    []nodeID

	udnIndex     map[UDN]nodeID
	controlIndex map[string]serviceRef
	eventIndex   map[string]serviceRef
}

func NewStore() *Store {
	return &Store{
		devices:      make(map[nodeID]*Device),
		services:     make(map[nodeID]*Service),
		udnIndex:     make(map[UDN]nodeID),
		controlIndex: make(map[string]serviceRef),
		eventIndex:   make(map[string]serviceRef),
	}
}

func (s *Store) newID() nodeID {
	return nodeID(atomic.AddUint32(&s.nextID, 1))
}

// NewDevice allocates an unattached device node. Callers must attach it via
// AddRoot or AddChild before it is visible to readers.
func (s *Store) NewDevice(info DeviceInfo) *Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := &Device{
		id:               s.newID(),
		udn:              info.UDN,
		deviceType:       info.Type,
		friendlyName:     info.FriendlyName,
		manufacturer:     info.Manufacturer,
		manufacturerURL:  info.ManufacturerURL,
		modelDescription: info.ModelDescription,
		modelName:        info.ModelName,
		modelNumber:      info.ModelNumber,
		modelURL:         info.ModelURL,
		serialNumber:     info.SerialNumber,
		presentationURL:  info.PresentationURL,
		icons:            info.Icons,
	}
	s.devices[d.id] = d
	return d
}

// AddRoot attaches d as a new root device with the given per-interface
// description locations. The root's UDN must be unique within the store.
func (s *Store) AddRoot(d *Device, locations []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.udnIndex[d.udn]; exists {
		return errs.New(errs.InvalidDeviceDescription, "duplicate root UDN %s", d.udn)
	}
	d.parent = noNode
	d.root = d.id
	d.locations = locations
	s.roots = append(s.roots, d.id)
	s.udnIndex[d.udn] = d.id
	return nil
}

// AddChild attaches child as an embedded device of parent.
func (s *Store) AddChild(parent, child *Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.udnIndex[child.udn]; exists {
		return errs.New(errs.InvalidDeviceDescription, "duplicate device UDN %s", child.udn)
	}
	child.parent = parent.id
	child.root = parent.root
	parent.children = append(parent.children, child.id)
	s.udnIndex[child.udn] = child.id
	return nil
}

// AddService attaches svc to device d, indexing its control and event URLs.
// Control URLs must be unique across the whole hosted tree.
func (s *Store) AddService(d *Device, svc *Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.controlIndex[svc.ControlURL()]; exists {
		return errs.New(errs.InvalidDeviceDescription, "duplicate control URL %s", svc.ControlURL())
	}
	id := s.newID()
	s.services[id] = svc
	d.services = append(d.services, id)

	ref := serviceRef{device: d.id, service: id}
	s.controlIndex[svc.ControlURL()] = ref
	if svc.EventSubURL() != "" {
		s.eventIndex[svc.EventSubURL()] = ref
	}
	return nil
}

// Roots yields every hosted root device.
func (s *Store) Roots() iter.Seq[*Device] {
	s.mu.RLock()
	roots := append([]nodeID(nil), s.roots...)
	s.mu.RUnlock()
	return func(yield func(*Device) bool) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, id := range roots {
			if !yield(s.devices[id]) {
				return
			}
		}
	}
}

// FindByUDN looks up a device by UDN, restricted to scope.
func (s *Store) FindByUDN(udn UDN, scope Scope) (*Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.udnIndex[udn]
	if !ok {
		return nil, false
	}
	d := s.devices[id]
	switch scope {
	case ScopeRoot:
		if !d.IsRoot() {
			return nil, false
		}
	case ScopeEmbedded:
		if d.IsRoot() {
			return nil, false
		}
	}
	return d, true
}

// Children yields d's embedded devices in the order they were attached.
func (s *Store) Children(d *Device) iter.Seq[*Device] {
	s.mu.RLock()
	ids := append([]nodeID(nil), d.children...)
	s.mu.RUnlock()
	return func(yield func(*Device) bool) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, id := range ids {
			if !yield(s.devices[id]) {
				return
			}
		}
	}
}

// Services returns the services directly declared on d.
func (s *Store) Services(d *Device) iter.Seq[*Service] {
	s.mu.RLock()
	ids := append([]nodeID(nil), d.services...)
	s.mu.RUnlock()
	return func(yield func(*Service) bool) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, id := range ids {
			if !yield(s.services[id]) {
				return
			}
		}
	}
}

// RootOf returns the root device that owns d (itself, if d is a root).
func (s *Store) RootOf(d *Device) *Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.devices[d.root]
}

// ServicesByType yields every hosted service whose type matches qt under
// the given version-match policy.
func (s *Store) ServicesByType(qt ResourceType, match VersionMatch) iter.Seq[*Service] {
	s.mu.RLock()
	all := make([]*Service, 0, len(s.services))
	for _, svc := range s.services {
		all = append(all, svc)
	}
	s.mu.RUnlock()
	return func(yield func(*Service) bool) {
		for _, svc := range all {
			if svc.Type().Matches(qt, match) {
				if !yield(svc) {
					return
				}
			}
		}
	}
}

// ActionForControlURL resolves a SOAP control POST's path to the service
// that owns it.
func (s *Store) ActionForControlURL(url string) (*Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.controlIndex[url]
	if !ok {
		return nil, false
	}
	return s.services[ref.service], true
}

// ServiceForEventURL resolves a SUBSCRIBE/UNSUBSCRIBE path to its service.
func (s *Store) ServiceForEventURL(url string) (*Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.eventIndex[url]
	if !ok {
		return nil, false
	}
	return s.services[ref.service], true
}

// DeviceOfService returns the device that declared svc.
func (s *Store) DeviceOfService(svc *Service) (*Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ref := range s.controlIndex {
		if s.services[ref.service] == svc {
			return s.devices[ref.device], true
		}
	}
	return nil, false
}
