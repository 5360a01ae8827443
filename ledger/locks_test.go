package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterLocks_ExclusiveAccess(t *testing.T) {
	locks := newRegisterLocks()
	ctx := context.Background()

	release, err := locks.Acquire(ctx, "front")
	require.NoError(t, err)

	// A second acquisition of the same register must not proceed until the
	// first is released.
	acquired := make(chan struct{})
	go func() {
		release2, err := locks.Acquire(ctx, "front")
		assert.NoError(t, err)
		close(acquired)
		release2()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquisition succeeded while the lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquisition never completed after release")
	}
}

func TestRegisterLocks_AcquireTimesOut(t *testing.T) {
	locks := newRegisterLocks()

	release, err := locks.Acquire(context.Background(), "front")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = locks.Acquire(ctx, "front")
	assert.ErrorIs(t, err, ErrOperationTimedOut)
}

func TestRegisterLocks_TimeoutReleasesPartialHolds(t *testing.T) {
	// GIVEN: "front" is held, so acquiring ("back", "front") grabs "back"
	// then blocks on "front" and times out
	locks := newRegisterLocks()

	release, err := locks.Acquire(context.Background(), "front")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.Acquire(ctx, "back", "front")
	require.ErrorIs(t, err, ErrOperationTimedOut)

	// THEN: "back" was handed back on the way out
	release2, err := locks.Acquire(context.Background(), "back")
	require.NoError(t, err)
	release2()
}

func TestRegisterLocks_OpposingOrdersDoNotDeadlock(t *testing.T) {
	// Acquisition sorts names, so (front, back) and (back, front) take the
	// locks in the same global order and can never deadlock.
	locks := newRegisterLocks()
	ctx := context.Background()

	const rounds = 100
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			release, err := locks.Acquire(ctx, "front", "back")
			if err != nil {
				t.Error(err)
				return
			}
			release()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			release, err := locks.Acquire(ctx, "back", "front")
			if err != nil {
				t.Error(err)
				return
			}
			release()
		}
	}()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("opposing acquisition orders deadlocked")
	}
}

func TestRegisterLocks_DeduplicatesNames(t *testing.T) {
	locks := newRegisterLocks()

	release, err := locks.Acquire(context.Background(), "front", "front")
	require.NoError(t, err)
	release()

	// Lock must be free again afterwards.
	release, err = locks.Acquire(context.Background(), "front")
	require.NoError(t, err)
	release()
}
