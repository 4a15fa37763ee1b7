package soap_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"gargoton.petite-maison-orange.fr/eric/devicehost/soap"
	"gargoton.petite-maison-orange.fr/eric/devicehost/tree"
)

func TestParseSOAPAction(t *testing.T) {
	st, action, err := soap.ParseSOAPAction(`"urn:schemas-upnp-org:service:SwitchPower:1#SetTarget"`)
	require.NoError(t, err)
	require.Equal(t, "urn:schemas-upnp-org:service:SwitchPower:1", st)
	require.Equal(t, "SetTarget", action)

	_, _, err = soap.ParseSOAPAction("no-hash-here")
	require.Error(t, err)
}

func newSwitchService(t *testing.T) (*tree.Service, *tree.Action) {
	t.Helper()
	sid, _ := tree.ParseServiceID("urn:upnp-org:serviceId:SwitchPower")
	stype, _ := tree.ParseResourceType("urn:schemas-upnp-org:service:SwitchPower:1")
	svc := tree.NewService(sid, stype)

	target := tree.NewStateVariable("Target", tree.TypeBoolean)
	require.NoError(t, target.SetDefault(false))
	svc.AddStateVariable(target)

	status := tree.NewStateVariable("Status", tree.TypeBoolean)
	require.NoError(t, status.SetDefault(false))
	svc.AddStateVariable(status)

	action := tree.NewAction("SetTarget")
	action.AddInArgument("newTargetValue", "Target")
	action.AddOutArgument("currentStatus", "Status", false)
	svc.AddAction(action, func(svc *tree.Service, in map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"currentStatus": in["newTargetValue"]}, nil
	})
	return svc, action
}

func TestDecodeRequestCastsArguments(t *testing.T) {
	svc, _ := newSwitchService(t)

	envelope := `<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body><u:SetTarget xmlns:u="urn:schemas-upnp-org:service:SwitchPower:1"><newTargetValue>1</newTargetValue></u:SetTarget></s:Body>
</s:Envelope>`

	req, err := soap.DecodeRequest(svc, "SetTarget", []byte(envelope))
	require.NoError(t, err)
	require.Equal(t, "SetTarget", req.ActionName)
	require.Equal(t, true, req.Args["newTargetValue"])
}

func TestDecodeRequestUnknownAction(t *testing.T) {
	svc, _ := newSwitchService(t)
	_, err := soap.DecodeRequest(svc, "NoSuchAction", []byte(`<s:Envelope xmlns:s="x"><s:Body></s:Body></s:Envelope>`))
	require.Error(t, err)
}

func TestDecodeRequestMalformedEnvelope(t *testing.T) {
	svc, _ := newSwitchService(t)
	_, err := soap.DecodeRequest(svc, "SetTarget", []byte("not xml at all"))
	require.Error(t, err)
}

func TestEncodeResponseRendersOutArgument(t *testing.T) {
	svc, action := newSwitchService(t)

	data, err := soap.EncodeResponse("urn:schemas-upnp-org:service:SwitchPower:1", "SetTarget", action, svc, map[string]interface{}{
		"currentStatus": true,
	})
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), "<currentStatus>1</currentStatus>"))
	require.True(t, strings.Contains(string(data), "SetTargetResponse"))
}

func TestEncodeFaultCarriesUPnPErrorCode(t *testing.T) {
	data, err := soap.EncodeFault(tree.InvalidArgs, "bad argument")
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), "<errorCode>402</errorCode>"))
	require.True(t, strings.Contains(string(data), "bad argument"))
}
