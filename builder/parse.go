package builder

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"gargoton.petite-maison-orange.fr/eric/devicehost/tree"
)

// deviceNode is the intermediate representation of one <device> element,
// before it has been handed to the application factory.
type deviceNode struct {
	UDN              string
	Type             tree.ResourceType
	FriendlyName     string
	Manufacturer     string
	ManufacturerURL  string
	ModelDescription string
	ModelName        string
	ModelNumber      string
	ModelURL         string
	SerialNumber     string
	PresentationURL  string
	Icons            []tree.Icon
	Services         []*serviceNode
	Children         []*deviceNode
}

type serviceNode struct {
	ServiceType string
	ServiceID   string
	SCPDURL     string
	ControlURL  string
	EventSubURL string
}

type actionArg struct {
	Name                 string
	RelatedStateVariable string
	IsRetval             bool
}

type actionNode struct {
	Name    string
	InArgs  []actionArg
	OutArgs []actionArg
}

type stateVariableNode struct {
	Name        string
	Type        tree.StateVarType
	SendEvents  tree.EventingMode
	Default     string
	Min, Max    string
	Allowed     []string
	Description string
}

// parseSendEvents reads a stateVariable's sendEvents attribute per spec.md
// §3's three-valued eventing model: "no" (the UDA default when the
// attribute is absent), "yes", or "multicast". Anything else is treated
// as "yes", matching the teacher's original lenient "not explicitly no
// means evented" behaviour for unrecognised values.
func parseSendEvents(raw string) tree.EventingMode {
	switch {
	case strings.EqualFold(raw, "no"):
		return tree.EventingNone
	case strings.EqualFold(raw, "multicast"):
		return tree.EventingMulticast
	default:
		return tree.EventingUnicast
	}
}

type scpdDocument struct {
	Actions        []*actionNode
	StateVariables []*stateVariableNode
}

func parseDeviceDocument(data []byte) (*deviceNode, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("device description: %w", err)
	}
	root := doc.SelectElement("root")
	if root == nil {
		return nil, fmt.Errorf("device description: missing <root> element")
	}
	deviceEl := root.SelectElement("device")
	if deviceEl == nil {
		return nil, fmt.Errorf("device description: missing <device> element")
	}
	return parseDeviceElement(deviceEl)
}

func parseDeviceElement(el *etree.Element) (*deviceNode, error) {
	n := &deviceNode{
		UDN:              childText(el, "UDN"),
		FriendlyName:     childText(el, "friendlyName"),
		Manufacturer:     childText(el, "manufacturer"),
		ManufacturerURL:  childText(el, "manufacturerURL"),
		ModelDescription: childText(el, "modelDescription"),
		ModelName:        childText(el, "modelName"),
		ModelNumber:      childText(el, "modelNumber"),
		ModelURL:         childText(el, "modelURL"),
		SerialNumber:     childText(el, "serialNumber"),
		PresentationURL:  childText(el, "presentationURL"),
	}

	deviceType := childText(el, "deviceType")
	rt, err := tree.ParseResourceType(deviceType)
	if err != nil {
		return nil, fmt.Errorf("device %s: %w", n.FriendlyName, err)
	}
	n.Type = rt

	if iconList := el.SelectElement("iconList"); iconList != nil {
		for _, iconEl := range iconList.SelectElements("icon") {
			width, _ := strconv.Atoi(childText(iconEl, "width"))
			height, _ := strconv.Atoi(childText(iconEl, "height"))
			depth, _ := strconv.Atoi(childText(iconEl, "depth"))
			n.Icons = append(n.Icons, tree.Icon{
				Mimetype: childText(iconEl, "mimetype"),
				Width:    width,
				Height:   height,
				Depth:    depth,
				URL:      childText(iconEl, "url"),
			})
		}
	}

	if serviceList := el.SelectElement("serviceList"); serviceList != nil {
		for _, svcEl := range serviceList.SelectElements("service") {
			n.Services = append(n.Services, &serviceNode{
				ServiceType: childText(svcEl, "serviceType"),
				ServiceID:   childText(svcEl, "serviceId"),
				SCPDURL:     childText(svcEl, "SCPDURL"),
				ControlURL:  childText(svcEl, "controlURL"),
				EventSubURL: childText(svcEl, "eventSubURL"),
			})
		}
	}

	if deviceList := el.SelectElement("deviceList"); deviceList != nil {
		for _, childEl := range deviceList.SelectElements("device") {
			child, err := parseDeviceElement(childEl)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		}
	}

	return n, nil
}

func parseSCPDDocument(data []byte) (*scpdDocument, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("scpd: %w", err)
	}
	scpdEl := doc.SelectElement("scpd")
	if scpdEl == nil {
		return nil, fmt.Errorf("scpd: missing <scpd> element")
	}

	out := &scpdDocument{}

	if actionList := scpdEl.SelectElement("actionList"); actionList != nil {
		for _, actEl := range actionList.SelectElements("action") {
			an := &actionNode{Name: childText(actEl, "name")}
			if argList := actEl.SelectElement("argumentList"); argList != nil {
				for _, argEl := range argList.SelectElements("argument") {
					arg := actionArg{
						Name:                 childText(argEl, "name"),
						RelatedStateVariable: childText(argEl, "relatedStateVariable"),
						IsRetval:             argEl.SelectElement("retval") != nil,
					}
					if strings.EqualFold(childText(argEl, "direction"), "out") {
						an.OutArgs = append(an.OutArgs, arg)
					} else {
						an.InArgs = append(an.InArgs, arg)
					}
				}
			}
			out.Actions = append(out.Actions, an)
		}
	}

	if table := scpdEl.SelectElement("serviceStateTable"); table != nil {
		for _, varEl := range table.SelectElements("stateVariable") {
			t, err := tree.ParseStateVarType(childText(varEl, "dataType"))
			if err != nil {
				return nil, fmt.Errorf("state variable %s: %w", childText(varEl, "name"), err)
			}
			vn := &stateVariableNode{
				Name:        childText(varEl, "name"),
				Type:        t,
				SendEvents:  parseSendEvents(varEl.SelectAttrValue("sendEvents", "no")),
				Default:     childText(varEl, "defaultValue"),
				Description: childText(varEl, "description"),
			}
			if rangeEl := varEl.SelectElement("allowedValueRange"); rangeEl != nil {
				vn.Min = childText(rangeEl, "minimum")
				vn.Max = childText(rangeEl, "maximum")
			}
			if listEl := varEl.SelectElement("allowedValueList"); listEl != nil {
				for _, avEl := range listEl.SelectElements("allowedValue") {
					vn.Allowed = append(vn.Allowed, avEl.Text())
				}
			}
			out.StateVariables = append(out.StateVariables, vn)
		}
	}

	return out, nil
}

func childText(el *etree.Element, tag string) string {
	child := el.SelectElement(tag)
	if child == nil {
		return ""
	}
	return strings.TrimSpace(child.Text())
}

func trimLeadingSlash(s string) string {
	return strings.TrimPrefix(s, "/")
}

func pathEscape(s string) string {
	return url.PathEscape(s)
}
