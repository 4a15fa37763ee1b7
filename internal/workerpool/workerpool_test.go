package workerpool_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gargoton.petite-maison-orange.fr/eric/devicehost/internal/workerpool"
)

func TestSubmitRunsEveryJob(t *testing.T) {
	pool := workerpool.New(4)

	var count int64
	for i := 0; i < 50; i++ {
		pool.Submit(func() { atomic.AddInt64(&count, 1) })
	}

	require.NoError(t, pool.DrainWithin(time.Second))
	require.Equal(t, int64(50), count)
}

func TestNewFloorsWorkerCount(t *testing.T) {
	pool := workerpool.New(1)
	done := make(chan struct{})
	pool.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
	require.NoError(t, pool.DrainWithin(time.Second))
}

func TestDrainTimesOutOnStuckJob(t *testing.T) {
	pool := workerpool.New(4)
	pool.Submit(func() { time.Sleep(time.Second) })

	err := pool.DrainWithin(10 * time.Millisecond)
	require.Error(t, err)
}
