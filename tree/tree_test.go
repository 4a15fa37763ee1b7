package tree_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"gargoton.petite-maison-orange.fr/eric/devicehost/tree"
)

func TestParseResourceTypeAndMatches(t *testing.T) {
	rt, err := tree.ParseResourceType("urn:schemas-upnp-org:service:SwitchPower:1")
	require.NoError(t, err)
	require.Equal(t, "schemas-upnp-org", rt.Domain)
	require.Equal(t, tree.KindService, rt.Kind)
	require.Equal(t, "SwitchPower", rt.Name)
	require.Equal(t, 1, rt.Version)
	require.Equal(t, "urn:schemas-upnp-org:service:SwitchPower:1", rt.String())

	v2, err := tree.ParseResourceType("urn:schemas-upnp-org:service:SwitchPower:2")
	require.NoError(t, err)

	require.True(t, v2.Matches(rt, tree.MatchAtLeast))
	require.False(t, rt.Matches(v2, tree.MatchAtLeast))
	require.False(t, v2.Matches(rt, tree.MatchExact))
	require.True(t, v2.Matches(rt, tree.MatchAny))

	_, err = tree.ParseResourceType("not-a-urn")
	require.Error(t, err)
}

func TestParseServiceID(t *testing.T) {
	sid, err := tree.ParseServiceID("urn:upnp-org:serviceId:SwitchPower1")
	require.NoError(t, err)
	require.Equal(t, "upnp-org", sid.Domain)
	require.Equal(t, "SwitchPower1", sid.ID)
	require.Equal(t, "urn:upnp-org:serviceId:SwitchPower1", sid.String())

	_, err = tree.ParseServiceID("garbage")
	require.Error(t, err)
}

func newTestService(t *testing.T) (*tree.Store, *tree.Device, *tree.Service) {
	t.Helper()
	store := tree.NewStore()
	stype, err := tree.ParseResourceType("urn:test-org:device:Switch:1")
	require.NoError(t, err)
	info := tree.DeviceInfo{UDN: "uuid:aaaaaaaa-0000-0000-0000-000000000001", Type: stype, FriendlyName: "Switch"}
	device := store.NewDevice(info)
	require.NoError(t, store.AddRoot(device, []string{"http://192.0.2.1:8080/x/description.xml"}))

	sid, err := tree.ParseServiceID("urn:test-org:serviceId:SwitchPower")
	require.NoError(t, err)
	svcType, err := tree.ParseResourceType("urn:test-org:service:SwitchPower:1")
	require.NoError(t, err)
	svc := tree.NewService(sid, svcType)
	svc.SetControlURL("/x/control")
	svc.SetEventSubURL("/x/event")

	target := tree.NewStateVariable("Target", tree.TypeBoolean)
	require.NoError(t, target.SetDefault(false))
	svc.AddStateVariable(target)

	status := tree.NewStateVariable("Status", tree.TypeBoolean)
	status.SetEvented(true)
	require.NoError(t, status.SetDefault(false))
	svc.AddStateVariable(status)

	setTarget := tree.NewAction("SetTarget")
	setTarget.AddInArgument("newTargetValue", "Target")
	svc.AddAction(setTarget, func(svc *tree.Service, in map[string]interface{}) (map[string]interface{}, error) {
		if _, err := svc.WithVariable("Target", func(interface{}) (interface{}, error) {
			return in["newTargetValue"], nil
		}); err != nil {
			return nil, err
		}
		if _, err := svc.WithVariable("Status", func(interface{}) (interface{}, error) {
			return in["newTargetValue"], nil
		}); err != nil {
			return nil, err
		}
		return nil, nil
	})

	require.NoError(t, store.AddService(device, svc))
	return store, device, svc
}

func TestStoreIndexesControlAndEventURLs(t *testing.T) {
	store, device, svc := newTestService(t)

	found, ok := store.FindByUDN(device.UDN(), tree.ScopeRoot)
	require.True(t, ok)
	require.Equal(t, device, found)

	resolved, ok := store.ActionForControlURL("/x/control")
	require.True(t, ok)
	require.Equal(t, svc, resolved)

	resolved, ok = store.ServiceForEventURL("/x/event")
	require.True(t, ok)
	require.Equal(t, svc, resolved)

	_, ok = store.ActionForControlURL("/does/not/exist")
	require.False(t, ok)
}

func TestAddServiceRejectsDuplicateControlURL(t *testing.T) {
	store, device, _ := newTestService(t)

	sid, _ := tree.ParseServiceID("urn:test-org:serviceId:Other")
	stype, _ := tree.ParseResourceType("urn:test-org:service:Other:1")
	dup := tree.NewService(sid, stype)
	dup.SetControlURL("/x/control")

	err := store.AddService(device, dup)
	require.Error(t, err)
}

func TestInvokeActionNotifiesListenerOnlyOnChange(t *testing.T) {
	_, _, svc := newTestService(t)

	var notifications [][]tree.NamedValue
	svc.SetChangeListener(func(s *tree.Service, changed []tree.NamedValue) {
		notifications = append(notifications, changed)
	})

	_, err := svc.InvokeAction("SetTarget", map[string]interface{}{"newTargetValue": true})
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	require.Len(t, notifications[0], 1)
	require.Equal(t, "Status", notifications[0][0].Name)
	require.Equal(t, "1", notifications[0][0].Value)

	// Setting the same value again produces no evented change.
	_, err = svc.InvokeAction("SetTarget", map[string]interface{}{"newTargetValue": true})
	require.NoError(t, err)
	require.Len(t, notifications, 1)

	v, ok := svc.Value("Target")
	require.True(t, ok)
	require.Equal(t, true, v)
}

func TestInvokeActionUnknownNameIsNotFound(t *testing.T) {
	_, _, svc := newTestService(t)
	_, err := svc.InvokeAction("DoesNotExist", nil)
	require.Error(t, err)
}

func TestWithVariableValidatesRange(t *testing.T) {
	level := tree.NewStateVariable("Level", tree.TypeUI1)
	require.NoError(t, level.SetDefault(uint8(0)))
	require.NoError(t, level.SetRange(uint8(0), uint8(10)))

	sid, _ := tree.ParseServiceID("urn:test-org:serviceId:Dimming")
	stype, _ := tree.ParseResourceType("urn:test-org:service:Dimming:1")
	svc := tree.NewService(sid, stype)
	svc.AddStateVariable(level)

	changed, err := svc.WithVariable("Level", func(interface{}) (interface{}, error) {
		return uint8(5), nil
	})
	require.NoError(t, err)
	require.True(t, changed)

	_, err = svc.WithVariable("Level", func(interface{}) (interface{}, error) {
		return uint8(99), nil
	})
	require.Error(t, err)

	v, _ := svc.Value("Level")
	require.Equal(t, uint8(5), v)
}

func TestStateVarTypeCastUI4(t *testing.T) {
	v, err := tree.TypeUI4.Cast("42")
	require.NoError(t, err)
	require.Equal(t, uint32(42), v)

	_, err = tree.TypeUI4.Cast("not-a-number")
	require.Error(t, err)
}

func TestRenderValueBoolean(t *testing.T) {
	require.Equal(t, "1", tree.RenderValue(tree.TypeBoolean, true))
	require.Equal(t, "0", tree.RenderValue(tree.TypeBoolean, false))
	require.Equal(t, "42", tree.RenderValue(tree.TypeUI4, uint32(42)))
}
