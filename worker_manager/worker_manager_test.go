package worker_manager

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/fornellas/slogxt/log"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	return log.WithLogger(t.Context(), slog.New(slog.DiscardHandler))
}

func TestWorkerManagerWorkerReturnCancelsOthers(t *testing.T) {
	ctx := testContext(t)
	wm := NewWorkerManager()
	failErr := errors.New("fail")
	wm.AddWorker("blocking", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	wm.AddWorker("failing", func(ctx context.Context) error {
		return failErr
	})
	wm.Start(ctx)
	<-wm.Done()
	errMap := wm.Wait(ctx)
	require.ErrorIs(t, errMap["blocking"], context.Canceled)
	require.ErrorIs(t, errMap["failing"], failErr)
	err := Err(errMap)
	require.ErrorIs(t, err, failErr)
	require.NotErrorIs(t, err, context.Canceled)
}

func TestWorkerManagerCancel(t *testing.T) {
	ctx := testContext(t)
	wm := NewWorkerManager()
	wm.AddWorker("a", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	wm.AddWorker("panics", func(ctx context.Context) error {
		<-ctx.Done()
		panic("boom")
	})
	wm.Start(ctx)
	wm.Cancel(ctx)
	errMap := wm.Wait(ctx)
	require.NoError(t, errMap["a"])
	require.ErrorContains(t, errMap["panics"], "panic: boom")
}
