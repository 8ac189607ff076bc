package app

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type countingSyncer struct {
	offline atomic.Bool
	syncs   atomic.Int32
	pushes  atomic.Int32
}

func (c *countingSyncer) Offline() bool { return c.offline.Load() }

func (c *countingSyncer) SyncAll(ctx context.Context) (SyncReport, error) {
	c.syncs.Add(1)
	return SyncReport{PassID: "p"}, nil
}

func (c *countingSyncer) PushPending(ctx context.Context) (PushReport, error) {
	c.pushes.Add(1)
	return PushReport{}, nil
}

func TestSyncScheduler_RunsBothTickers(t *testing.T) {
	engine := &countingSyncer{}
	sch := NewSyncScheduler(zerolog.Nop(), engine)
	sch.SyncInterval = 40 * time.Millisecond
	sch.RetryInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sch.Run(ctx)
		close(done)
	}()

	time.Sleep(150 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("scheduler did not stop")
	}

	assert.GreaterOrEqual(t, engine.syncs.Load(), int32(2))
	assert.GreaterOrEqual(t, engine.pushes.Load(), int32(3))
}

func TestSyncScheduler_SkipsWhenOffline(t *testing.T) {
	engine := &countingSyncer{}
	engine.offline.Store(true)
	sch := NewSyncScheduler(zerolog.Nop(), engine)
	sch.SyncInterval = 10 * time.Millisecond
	sch.RetryInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	sch.Run(ctx)

	assert.Zero(t, engine.syncs.Load())
	assert.Zero(t, engine.pushes.Load())
}

func TestSyncScheduler_SkipsWhileSignedOut(t *testing.T) {
	engine := &countingSyncer{}
	var signedIn atomic.Bool
	sch := NewSyncScheduler(zerolog.Nop(), engine)
	sch.SyncOnStart = false
	sch.SyncInterval = time.Hour
	sch.RetryInterval = 10 * time.Millisecond
	sch.SignedIn = signedIn.Load

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sch.Run(ctx)
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, engine.pushes.Load())

	signedIn.Store(true)
	assert.Eventually(t, func() bool { return engine.pushes.Load() > 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Zero(t, engine.syncs.Load())
}
