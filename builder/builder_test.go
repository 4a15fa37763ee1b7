package builder_test

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"gargoton.petite-maison-orange.fr/eric/devicehost/builder"
	"gargoton.petite-maison-orange.fr/eric/devicehost/description"
	"gargoton.petite-maison-orange.fr/eric/devicehost/tree"
)

const testDeviceXML = `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <device>
    <deviceType>urn:herqq-org:device:HTest:1</deviceType>
    <friendlyName>Test Device</friendlyName>
    <manufacturer>herqq</manufacturer>
    <UDN>uuid:11111111-1111-1111-1111-111111111111</UDN>
    <serviceList>
      <service>
        <serviceType>urn:herqq-org:service:HTestService:1</serviceType>
        <serviceId>urn:herqq-org:serviceId:HTestService</serviceId>
        <SCPDURL>scpd.xml</SCPDURL>
        <controlURL>control</controlURL>
        <eventSubURL>event</eventSubURL>
      </service>
    </serviceList>
  </device>
</root>`

const testSCPDXML = `<?xml version="1.0"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <actionList>
    <action>
      <name>Echo</name>
      <argumentList>
        <argument><name>MessageIn</name><direction>in</direction><relatedStateVariable>MessageIn</relatedStateVariable></argument>
        <argument><name>MessageOut</name><direction>out</direction><relatedStateVariable>MessageOut</relatedStateVariable></argument>
      </argumentList>
    </action>
  </actionList>
  <serviceStateTable>
    <stateVariable sendEvents="no">
      <name>MessageIn</name>
      <dataType>string</dataType>
    </stateVariable>
    <stateVariable sendEvents="no">
      <name>MessageOut</name>
      <dataType>string</dataType>
    </stateVariable>
    <stateVariable sendEvents="yes">
      <name>RegisteredClientCount</name>
      <dataType>ui4</dataType>
      <defaultValue>0</defaultValue>
    </stateVariable>
    <stateVariable sendEvents="multicast">
      <name>MulticastPing</name>
      <dataType>ui4</dataType>
      <defaultValue>0</defaultValue>
    </stateVariable>
  </serviceStateTable>
</scpd>`

func testFactory(info tree.DeviceInfo) (map[tree.ServiceID]builder.ServiceHandlers, error) {
	sid, _ := tree.ParseServiceID("urn:herqq-org:serviceId:HTestService")
	return map[tree.ServiceID]builder.ServiceHandlers{
		sid: {
			Actions: map[string]tree.ActionHandler{
				"Echo": func(svc *tree.Service, in map[string]interface{}) (map[string]interface{}, error) {
					return map[string]interface{}{"MessageOut": in["MessageIn"]}, nil
				},
			},
		},
	}, nil
}

func TestBuildCommitsDeviceTree(t *testing.T) {
	fsys := fstest.MapFS{
		"xml/device.xml": {Data: []byte(testDeviceXML)},
		"xml/scpd.xml":   {Data: []byte(testSCPDXML)},
	}
	provider, err := description.NewFSProvider(fsys, "xml")
	require.NoError(t, err)

	store := tree.NewStore()
	result, err := builder.Build(store, builder.Config{
		DescriptionPath: "device.xml",
		Provider:        provider,
		BaseURLs:        []string{"http://192.0.2.1:8080"},
		Factory:         testFactory,
		StrictParsing:   true,
	})
	require.NoError(t, err)
	device := result.Device
	require.True(t, device.IsRoot())
	require.Equal(t, tree.UDN("uuid:11111111-1111-1111-1111-111111111111"), device.UDN())

	descPath := "/" + "uuid:11111111-1111-1111-1111-111111111111" + "/description.xml"
	doc, ok := result.Documents[descPath]
	require.True(t, ok)
	require.Equal(t, testDeviceXML, string(doc.Data))

	found, ok := store.FindByUDN(device.UDN(), tree.ScopeRoot)
	require.True(t, ok)
	require.Equal(t, device, found)

	var svcCount int
	for svc := range store.Services(device) {
		svcCount++
		out, err := svc.InvokeAction("Echo", map[string]interface{}{"MessageIn": "abc"})
		require.NoError(t, err)
		require.Equal(t, "abc", out["MessageOut"])

		count, ok := svc.StateVariable("RegisteredClientCount")
		require.True(t, ok)
		require.Equal(t, tree.EventingUnicast, count.Eventing())
		require.True(t, count.IsEvented())
		require.False(t, count.IsMulticastEvented())

		ping, ok := svc.StateVariable("MulticastPing")
		require.True(t, ok)
		require.Equal(t, tree.EventingMulticast, ping.Eventing())
		require.True(t, ping.IsEvented())
		require.True(t, ping.IsMulticastEvented())

		msgIn, ok := svc.StateVariable("MessageIn")
		require.True(t, ok)
		require.Equal(t, tree.EventingNone, msgIn.Eventing())
		require.False(t, msgIn.IsEvented())
	}
	require.Equal(t, 1, svcCount)
}
