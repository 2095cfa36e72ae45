package bot

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/labsage/internal/logger"
)

type fakeListener struct{ returnEarly bool }

func (f fakeListener) Start(ctx context.Context) {
	if f.returnEarly {
		return
	}
	<-ctx.Done()
}

type fakeScheduler struct {
	startErr error
	started  atomic.Bool
	stopped  atomic.Bool
}

func (f *fakeScheduler) Start() (int, error) {
	f.started.Store(true)
	return 0, f.startErr
}

func (f *fakeScheduler) Stop() error {
	f.stopped.Store(true)
	return nil
}

type fakeOps struct{ err error }

func (f fakeOps) Run(ctx context.Context) error {
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return nil
}

func runWithTimeout(t *testing.T, b *Bot, ctx context.Context) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("bot did not stop")
		return nil
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	sched := &fakeScheduler{}
	b := NewBot(logger.Discard(), fakeListener{}, sched, fakeOps{})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	require.NoError(t, runWithTimeout(t, b, ctx))
	assert.True(t, sched.started.Load())
	assert.True(t, sched.stopped.Load())
}

func TestRunListenerStopsUnexpectedly(t *testing.T) {
	t.Parallel()
	sched := &fakeScheduler{}
	b := NewBot(logger.Discard(), fakeListener{returnEarly: true}, sched, nil)

	err := runWithTimeout(t, b, context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped unexpectedly")
	assert.True(t, sched.stopped.Load())
}

func TestRunSchedulerFailure(t *testing.T) {
	t.Parallel()
	sched := &fakeScheduler{startErr: errors.New("bad cron")}
	b := NewBot(logger.Discard(), fakeListener{}, sched, nil)

	err := runWithTimeout(t, b, context.Background())
	assert.ErrorIs(t, err, sched.startErr)
}

func TestRunOpsFailure(t *testing.T) {
	t.Parallel()
	opsErr := errors.New("address in use")
	b := NewBot(logger.Discard(), fakeListener{}, &fakeScheduler{}, fakeOps{err: opsErr})

	assert.ErrorIs(t, runWithTimeout(t, b, context.Background()), opsErr)
}
