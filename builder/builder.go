// Package builder implements the Tree Builder (spec.md §4.C): it loads a
// device description through a description.Provider, parses the device and
// service topology with beevik/etree, asks an application-supplied factory
// for the action handlers that bring each service to life, and attaches the
// result to a tree.Store (see Build for what a failed build leaves behind).
package builder

import (
	"fmt"

	"gargoton.petite-maison-orange.fr/eric/devicehost/description"
	"gargoton.petite-maison-orange.fr/eric/devicehost/internal/errs"
	"gargoton.petite-maison-orange.fr/eric/devicehost/tree"
)

// ServiceHandlers is what the application-supplied Factory returns for one
// declared service: an action handler per action name, plus an optional
// listener for the change notifications InvokeAction produces.
type ServiceHandlers struct {
	Actions  map[string]tree.ActionHandler
	Listener tree.ChangeListener
}

// Factory materialises the behaviour behind one device node's services.
// It is called once per device in the parsed tree (root or embedded), keyed
// by the device's ResourceType, and returns one ServiceHandlers per
// serviceId declared on that device.
type Factory func(info tree.DeviceInfo) (map[tree.ServiceID]ServiceHandlers, error)

// Config is one device configuration to build (spec.md §4.C inputs).
type Config struct {
	// DescriptionPath is the logical name passed to Provider.Open for the
	// root device description (e.g. "device.xml").
	DescriptionPath string
	Provider        description.Provider

	// BaseURLs is one absolute "scheme://host:port" per bound interface.
	BaseURLs []string

	Factory       Factory
	StrictParsing bool
}

// Document is one servable byte blob discovered while building the tree —
// the root description, each service's SCPD, and each device's icons —
// keyed by the absolute path the HTTP Server should serve it at.
type Document struct {
	ContentType string
	Data        []byte
}

// Result is what Build hands back: the root device and every document the
// HTTP Server needs to serve GET requests for it.
type Result struct {
	Device    *tree.Device
	Documents map[string]Document
}

// Build parses cfg's device description, materialises the device tree via
// cfg.Factory, validates cross-references, and commits it into store.
// The root is added to store.Roots() only as the last step, so a failed
// build never appears there. Devices, services and embedded-device UDNs
// attached before a failure are not removed: they stay in store's UDN,
// control-URL and event-URL indexes.
func Build(store *tree.Store, cfg Config) (*Result, error) {
	if cfg.Provider == nil {
		return nil, errs.New(errs.InvalidConfiguration, "builder: no description provider configured")
	}
	if cfg.Factory == nil {
		return nil, errs.New(errs.InvalidConfiguration, "builder: no device factory configured")
	}
	if len(cfg.BaseURLs) == 0 {
		return nil, errs.New(errs.InvalidConfiguration, "builder: no base URLs to bind locations to")
	}

	data, err := cfg.Provider.Open(cfg.DescriptionPath)
	if err != nil {
		return nil, err
	}

	root, err := parseDeviceDocument(data)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidDeviceDescription, err, "parsing %s", cfg.DescriptionPath)
	}

	b := &buildSession{store: store, cfg: cfg, documents: make(map[string]Document)}
	device, err := b.materialise(root, nil, "")
	if err != nil {
		return nil, err
	}

	rootPrefix := "/" + pathEscape(string(device.UDN()))
	locations := make([]string, 0, len(cfg.BaseURLs))
	for _, base := range cfg.BaseURLs {
		locations = append(locations, base+rootPrefix+"/description.xml")
	}
	if err := store.AddRoot(device, locations); err != nil {
		return nil, err
	}
	b.documents[rootPrefix+"/description.xml"] = Document{ContentType: `text/xml; charset="utf-8"`, Data: data}

	return &Result{Device: device, Documents: b.documents}, nil
}

// buildSession threads the in-progress parse through recursive device
// construction; it exists only for the duration of one Build call.
type buildSession struct {
	store     *tree.Store
	cfg       Config
	documents map[string]Document
}

func (b *buildSession) materialise(node *deviceNode, parent *tree.Device, rootPrefix string) (*tree.Device, error) {
	info := tree.DeviceInfo{
		UDN:              tree.UDN(node.UDN),
		Type:             node.Type,
		FriendlyName:     node.FriendlyName,
		Manufacturer:     node.Manufacturer,
		ManufacturerURL:  node.ManufacturerURL,
		ModelDescription: node.ModelDescription,
		ModelName:        node.ModelName,
		ModelNumber:      node.ModelNumber,
		ModelURL:         node.ModelURL,
		SerialNumber:     node.SerialNumber,
		PresentationURL:  node.PresentationURL,
		Icons:            node.Icons,
	}
	if !info.UDN.Valid() {
		return nil, errs.New(errs.InvalidDeviceDescription, "device %q: UDN %q is not of the form uuid:<uuid>", node.FriendlyName, node.UDN)
	}

	handlers, err := b.cfg.Factory(info)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidDeviceDescription, err, "factory rejected device %s", info.UDN)
	}

	device := b.store.NewDevice(info)

	if rootPrefix == "" {
		rootPrefix = "/" + pathEscape(string(info.UDN))
	}

	for _, icon := range node.Icons {
		data, err := b.cfg.Provider.Open(icon.URL)
		if err != nil {
			return nil, err
		}
		path := rootPrefix + "/" + trimLeadingSlash(icon.URL)
		b.documents[path] = Document{ContentType: icon.Mimetype, Data: data}
	}

	for _, sn := range node.Services {
		svc, err := b.materialiseService(sn, rootPrefix, handlers)
		if err != nil {
			return nil, err
		}
		if err := b.store.AddService(device, svc); err != nil {
			return nil, err
		}
	}

	if parent != nil {
		if err := b.store.AddChild(parent, device); err != nil {
			return nil, err
		}
	}

	for _, cn := range node.Children {
		if _, err := b.materialise(cn, device, rootPrefix); err != nil {
			return nil, err
		}
	}

	return device, nil
}

func (b *buildSession) materialiseService(sn *serviceNode, rootPrefix string, handlers map[tree.ServiceID]ServiceHandlers) (*tree.Service, error) {
	sid, err := tree.ParseServiceID(sn.ServiceID)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidServiceDescription, err, "service id")
	}
	stype, err := tree.ParseResourceType(sn.ServiceType)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidServiceDescription, err, "service type")
	}

	scpdData, err := b.cfg.Provider.Open(sn.SCPDURL)
	if err != nil {
		return nil, err
	}
	scpd, err := parseSCPDDocument(scpdData)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidServiceDescription, err, "parsing SCPD for %s", sid)
	}

	svc := tree.NewService(sid, stype)
	svc.SetControlURL(rootPrefix + "/" + trimLeadingSlash(sn.ControlURL))
	svc.SetEventSubURL(rootPrefix + "/" + trimLeadingSlash(sn.EventSubURL))
	svc.SetSCPDURL(rootPrefix + "/" + trimLeadingSlash(sn.SCPDURL))
	b.documents[svc.SCPDURL()] = Document{ContentType: `text/xml; charset="utf-8"`, Data: scpdData}

	for _, vn := range scpd.StateVariables {
		sv := tree.NewStateVariable(vn.Name, vn.Type)
		sv.SetEventing(vn.SendEvents)
		sv.SetDescription(vn.Description)
		if vn.Default != "" {
			if err := sv.SetDefault(vn.Default); err != nil {
				return nil, errs.Wrap(errs.InvalidServiceDescription, err, "state variable %s default", vn.Name)
			}
		}
		if vn.Min != "" || vn.Max != "" {
			if err := sv.SetRange(vn.Min, vn.Max); err != nil {
				return nil, errs.Wrap(errs.InvalidServiceDescription, err, "state variable %s range", vn.Name)
			}
		}
		if len(vn.Allowed) > 0 {
			allowed := make([]interface{}, len(vn.Allowed))
			for i, a := range vn.Allowed {
				allowed[i] = a
			}
			if err := sv.SetAllowedValues(allowed...); err != nil {
				return nil, errs.Wrap(errs.InvalidServiceDescription, err, "state variable %s allowed values", vn.Name)
			}
		}
		svc.AddStateVariable(sv)
	}

	sh, haveHandlers := handlers[sid]
	if b.cfg.StrictParsing && !haveHandlers {
		return nil, errs.New(errs.MissingActionHandler, "no handlers supplied for service %s", sid)
	}

	for _, an := range scpd.Actions {
		action := tree.NewAction(an.Name)
		for _, arg := range an.InArgs {
			if _, ok := svc.StateVariable(arg.RelatedStateVariable); !ok {
				return nil, errs.New(errs.InvalidServiceDescription, "action %s argument %s: unknown related state variable %s", an.Name, arg.Name, arg.RelatedStateVariable)
			}
			action.AddInArgument(arg.Name, arg.RelatedStateVariable)
		}
		for _, arg := range an.OutArgs {
			if _, ok := svc.StateVariable(arg.RelatedStateVariable); !ok {
				return nil, errs.New(errs.InvalidServiceDescription, "action %s argument %s: unknown related state variable %s", an.Name, arg.Name, arg.RelatedStateVariable)
			}
			action.AddOutArgument(arg.Name, arg.RelatedStateVariable, arg.IsRetval)
		}

		handler, ok := sh.Actions[an.Name]
		if !ok {
			if b.cfg.StrictParsing {
				return nil, errs.New(errs.MissingActionHandler, "no handler for action %s on service %s", an.Name, sid)
			}
			handler = func(*tree.Service, map[string]interface{}) (map[string]interface{}, error) {
				return nil, tree.NewActionError(tree.ActionFailed, fmt.Sprintf("action %s not implemented", an.Name))
			}
		}
		svc.AddAction(action, handler)
	}

	if sh.Listener != nil {
		svc.SetChangeListener(sh.Listener)
	}
	return svc, nil
}
