package gena_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gargoton.petite-maison-orange.fr/eric/devicehost/gena"
	"gargoton.petite-maison-orange.fr/eric/devicehost/internal/workerpool"
	"gargoton.petite-maison-orange.fr/eric/devicehost/tree"
)

func newTestService(t *testing.T) *tree.Service {
	t.Helper()
	sid, err := tree.ParseServiceID("urn:herqq-org:serviceId:HTestService")
	require.NoError(t, err)
	stype, err := tree.ParseResourceType("urn:herqq-org:service:HTestService:1")
	require.NoError(t, err)
	svc := tree.NewService(sid, stype)

	sv := tree.NewStateVariable("RegisteredClientCount", tree.TypeUI4)
	sv.SetEvented(true)
	require.NoError(t, sv.SetDefault(uint32(0)))
	svc.AddStateVariable(sv)

	svc.AddAction(tree.NewAction("Register"), func(svc *tree.Service, in map[string]interface{}) (map[string]interface{}, error) {
		_, err := svc.WithVariable("RegisteredClientCount", func(current interface{}) (interface{}, error) {
			return current.(uint32) + 1, nil
		})
		return nil, err
	})
	return svc
}

func TestSubscribeDeliversInitialNotify(t *testing.T) {
	var mu sync.Mutex
	var seqs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seqs = append(seqs, r.Header.Get("SEQ"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pool := workerpool.New(4)
	mgr := gena.NewManager(pool, nil, nil)
	svc := newTestService(t)
	svc.SetChangeListener(mgr.Notifier().OnChange)

	sub, err := mgr.Subscribe(svc, "192.0.2.99", []string{srv.URL}, 300*time.Second)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(sub.SID(), "uuid:"))
	require.Equal(t, "Second-300", sub.TimeoutHeader())

	_, err = svc.InvokeAction("Register", nil)
	require.NoError(t, err)
	_, err = svc.InvokeAction("Register", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seqs) == 3
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	require.Equal(t, []string{"0", "1", "2"}, seqs)
	mu.Unlock()

	require.NoError(t, mgr.Unsubscribe(sub.SID()))
	require.Equal(t, 0, mgr.Count())
}
