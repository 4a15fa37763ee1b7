package tree

// nodeID is a stable arena index. Back-references (parent, root) are ids,
// not pointers, per the design note in spec.md §9 — it keeps teardown from
// having to reason about ownership cycles between a device and its parent.
type nodeID uint32

const noNode nodeID = 0

// Icon is one entry of a device's <iconList>.
type Icon struct {
	Mimetype string
	Width    int
	Height   int
	Depth    int
	URL      string // relative to the device's base URL
}

// Device is one node — root or embedded — of a hosted device tree.
type Device struct {
	id     nodeID
	parent nodeID // noNode iff this is a root device
	root   nodeID // the root device's id; equals id for a root device

	udn        UDN
	deviceType ResourceType

	friendlyName     string
	manufacturer     string
	manufacturerURL  string
	modelDescription string
	modelName        string
	modelNumber      string
	modelURL         string
	serialNumber     string
	presentationURL  string

	icons    []Icon
	children []nodeID
	services []nodeID

	// locations holds one description URL per bound interface, set only on
	// root devices (spec.md §3: "locations: set of description URLs (one
	// per bound interface × root UDN)").
	locations []string
}

func (d *Device) UDN() UDN               { return d.udn }
func (d *Device) Type() ResourceType     { return d.deviceType }
func (d *Device) FriendlyName() string   { return d.friendlyName }
func (d *Device) Manufacturer() string   { return d.manufacturer }
func (d *Device) ManufacturerURL() string { return d.manufacturerURL }
func (d *Device) ModelDescription() string { return d.modelDescription }
func (d *Device) ModelName() string      { return d.modelName }
func (d *Device) ModelNumber() string    { return d.modelNumber }
func (d *Device) ModelURL() string       { return d.modelURL }
func (d *Device) SerialNumber() string   { return d.serialNumber }
func (d *Device) PresentationURL() string { return d.presentationURL }
func (d *Device) Icons() []Icon          { return d.icons }
func (d *Device) Locations() []string    { return d.locations }
func (d *Device) IsRoot() bool           { return d.parent == noNode }
func (d *Device) Name() string           { return string(d.udn) }
