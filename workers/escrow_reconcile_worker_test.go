package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"briefly-server/logger"

	"github.com/stretchr/testify/assert"
)

type countingReconciler struct {
	calls atomic.Int32
	err   error
}

func (r *countingReconciler) ReconcileLocked(context.Context) (int, error) {
	r.calls.Add(1)
	return 1, r.err
}

func TestPollEscrow_RunsUntilCancelled(t *testing.T) {
	r := &countingReconciler{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		PollEscrow(ctx, r, 5*time.Millisecond, logger.Nop())
		close(done)
	}()

	assert.Eventually(t, func() bool { return r.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PollEscrow did not stop after cancel")
	}
}

func TestPollEscrow_KeepsPollingAfterErrors(t *testing.T) {
	r := &countingReconciler{err: errors.New("rpc down")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go PollEscrow(ctx, r, 5*time.Millisecond, logger.Nop())

	assert.Eventually(t, func() bool { return r.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}
