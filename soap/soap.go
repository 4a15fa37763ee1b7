// Package soap implements the SOAP envelope codec used by the HTTP
// Server's control dispatch (spec.md §4.D): decoding an incoming action
// request into already-typed arguments, and encoding a handler's result (or
// a UPnP fault) back into a SOAP envelope.
package soap

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"gargoton.petite-maison-orange.fr/eric/devicehost/internal/errs"
	"gargoton.petite-maison-orange.fr/eric/devicehost/tree"
)

const (
	envelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	encodingNS = "http://schemas.xmlsoap.org/soap/encoding/"
	controlNS  = "urn:schemas-upnp-org:control-1-0"
)

// Request is one decoded SOAP control request.
type Request struct {
	ActionName string
	Args       map[string]interface{}
}

// ParseSOAPAction splits a SOAPACTION header value of the form
// `"<service-type>#<action>"` into its two parts.
func ParseSOAPAction(header string) (serviceType, action string, err error) {
	h := strings.Trim(strings.TrimSpace(header), `"`)
	idx := strings.LastIndex(h, "#")
	if idx < 0 {
		return "", "", fmt.Errorf("malformed SOAPACTION %q", header)
	}
	return h[:idx], h[idx+1:], nil
}

// DecodeRequest parses a SOAP envelope body for svc's action, casting every
// argument through its relatedStateVariable's declared type.
func DecodeRequest(svc *tree.Service, actionName string, body []byte) (*Request, error) {
	action, ok := svc.Action(actionName)
	if !ok {
		return nil, errs.New(errs.NotFound, "no such action %q", actionName)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, errs.Wrap(errs.InvalidFormat, err, "parsing SOAP envelope")
	}
	envelope := doc.SelectElement("Envelope")
	if envelope == nil {
		return nil, errs.New(errs.InvalidFormat, "missing SOAP Envelope")
	}
	bodyEl := envelope.SelectElement("Body")
	if bodyEl == nil || len(bodyEl.ChildElements()) == 0 {
		return nil, errs.New(errs.InvalidFormat, "missing SOAP Body")
	}
	actionEl := bodyEl.ChildElements()[0]

	args := make(map[string]interface{})
	for _, arg := range action.InArguments() {
		child := actionEl.SelectElement(arg.Name)
		text := ""
		if child != nil {
			text = child.Text()
		}
		sv, ok := svc.StateVariable(arg.RelatedStateVariable)
		if !ok {
			return nil, errs.New(errs.InvalidServiceDescription, "argument %s: unknown related state variable %s", arg.Name, arg.RelatedStateVariable)
		}
		cast, err := sv.Type().Cast(text)
		if err != nil {
			return nil, &tree.ActionError{Code: tree.InvalidArgs, Description: fmt.Sprintf("argument %s: %v", arg.Name, err)}
		}
		args[arg.Name] = cast
	}

	return &Request{ActionName: actionName, Args: args}, nil
}

// EncodeResponse builds the SOAP response envelope for a successful action
// invocation, emitting out arguments in the action's declared order.
func EncodeResponse(serviceType, actionName string, action *tree.Action, svc *tree.Service, out map[string]interface{}) ([]byte, error) {
	doc := newEnvelopeDoc()
	body := doc.SelectElement("Envelope").SelectElement("Body")

	respEl := body.CreateElement("u:" + actionName + "Response")
	respEl.CreateAttr("xmlns:u", serviceType)

	for _, arg := range action.OutArguments() {
		sv, ok := svc.StateVariable(arg.RelatedStateVariable)
		if !ok {
			return nil, errs.New(errs.InvalidServiceDescription, "argument %s: unknown related state variable %s", arg.Name, arg.RelatedStateVariable)
		}
		val := out[arg.Name]
		el := respEl.CreateElement(arg.Name)
		el.SetText(tree.RenderValue(sv.Type(), val))
	}

	doc.Indent(0)
	return doc.WriteToBytes()
}

// EncodeFault builds a SOAP fault envelope carrying a UPnP error code, as
// returned when an action handler fails (spec.md §4.D, §7).
func EncodeFault(code tree.ErrorCode, description string) ([]byte, error) {
	doc := newEnvelopeDoc()
	body := doc.SelectElement("Envelope").SelectElement("Body")

	fault := body.CreateElement("s:Fault")
	fault.CreateElement("faultcode").SetText("s:Client")
	fault.CreateElement("faultstring").SetText("UPnPError")
	detail := fault.CreateElement("detail")
	upnpErr := detail.CreateElement("UPnPError")
	upnpErr.CreateAttr("xmlns", controlNS)
	upnpErr.CreateElement("errorCode").SetText(fmt.Sprintf("%d", code))
	upnpErr.CreateElement("errorDescription").SetText(description)

	doc.Indent(0)
	return doc.WriteToBytes()
}

func newEnvelopeDoc() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0"`)
	envelope := doc.CreateElement("s:Envelope")
	envelope.CreateAttr("xmlns:s", envelopeNS)
	envelope.CreateAttr("s:encodingStyle", encodingNS)
	envelope.CreateElement("s:Body")
	return doc
}
