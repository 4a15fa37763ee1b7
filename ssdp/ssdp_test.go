package ssdp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gargoton.petite-maison-orange.fr/eric/devicehost/internal/workerpool"
	"gargoton.petite-maison-orange.fr/eric/devicehost/tree"
)

func TestClampMX(t *testing.T) {
	require.Equal(t, 1, clampMX(""))
	require.Equal(t, 1, clampMX("0"))
	require.Equal(t, 1, clampMX("-3"))
	require.Equal(t, 3, clampMX("3"))
	require.Equal(t, 5, clampMX("10"))
}

func TestAllTuplesEnumeratesRootDeviceAndServices(t *testing.T) {
	store := tree.NewStore()
	info := tree.DeviceInfo{UDN: "uuid:11111111-1111-1111-1111-111111111111"}
	info.Type, _ = tree.ParseResourceType("urn:herqq-org:device:HTest:1")
	root := store.NewDevice(info)
	require.NoError(t, store.AddRoot(root, []string{"http://192.0.2.1:8080/uuid%3A11111111-1111-1111-1111-111111111111/description.xml"}))

	sid, _ := tree.ParseServiceID("urn:herqq-org:serviceId:HTestService")
	stype, _ := tree.ParseResourceType("urn:herqq-org:service:HTestService:1")
	svc := tree.NewService(sid, stype)
	svc.SetControlURL("/control")
	require.NoError(t, store.AddService(root, svc))

	pool := workerpool.New(4)
	h := New(store, pool, nil, 1800*time.Second, 2)

	tuples := h.allTuples(root)
	require.Len(t, tuples, 4) // rootdevice, UDN, device type, service type

	var sawRootDevice, sawServiceType bool
	for _, tpl := range tuples {
		if tpl.NT == "upnp:rootdevice" {
			sawRootDevice = true
		}
		if tpl.NT == stype.String() {
			sawServiceType = true
		}
	}
	require.True(t, sawRootDevice)
	require.True(t, sawServiceType)
}

func TestMatchingTuplesUUIDQuery(t *testing.T) {
	store := tree.NewStore()
	info := tree.DeviceInfo{UDN: "uuid:22222222-2222-2222-2222-222222222222"}
	info.Type, _ = tree.ParseResourceType("urn:herqq-org:device:HTest:1")
	root := store.NewDevice(info)
	require.NoError(t, store.AddRoot(root, []string{"http://192.0.2.1:8080/x/description.xml"}))

	pool := workerpool.New(4)
	h := New(store, pool, nil, 1800*time.Second, 2)

	tuples := h.matchingTuples("uuid:22222222-2222-2222-2222-222222222222")
	require.Len(t, tuples, 1)
	require.Equal(t, "uuid:22222222-2222-2222-2222-222222222222", tuples[0].NT)
}

func TestEndpointsReportsBoundUnicastSockets(t *testing.T) {
	store := tree.NewStore()
	pool := workerpool.New(4)
	h := New(store, pool, nil, 1800*time.Second, 2)

	require.Empty(t, h.Endpoints())

	uc, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	defer uc.Close()

	h.mu.Lock()
	h.socks = append(h.socks, &interfaceSocket{iface: net.ParseIP("127.0.0.1"), uc: uc})
	h.mu.Unlock()

	endpoints := h.Endpoints()
	require.Len(t, endpoints, 1)
	require.True(t, endpoints[0].IP.Equal(net.ParseIP("127.0.0.1")))
	require.NotZero(t, endpoints[0].Port)
}
