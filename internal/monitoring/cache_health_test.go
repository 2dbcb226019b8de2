package monitoring

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeProber struct {
	calls atomic.Int32
	err   error
}

func (p *fakeProber) Ping(ctx context.Context) error {
	p.calls.Add(1)
	return p.err
}

func TestCheck(t *testing.T) {
	down := &fakeProber{err: errors.New("connection refused")}
	up := &fakeProber{}

	assert.False(t, check(context.Background(), down, time.Second, true))
	assert.False(t, check(context.Background(), down, time.Second, false))
	assert.True(t, check(context.Background(), up, time.Second, false))
	assert.True(t, check(context.Background(), up, time.Second, true))
}

func TestMonitorCacheHealth_PingsUntilCancelled(t *testing.T) {
	probe := &fakeProber{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		MonitorCacheHealth(ctx, probe, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return probe.calls.Load() >= 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
