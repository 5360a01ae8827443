/*
locks.go - Per-register locks with ordered acquisition

PURPOSE:
  Balance is derived, so two concurrent operations on the same register
  could both read a "sufficient" snapshot and both proceed, overdrawing
  it. Every balance-reading step that is followed by a balance-dependent
  mutation runs under the register's lock, held until commit or rollback.

ORDERING:
  The two registers are independent lock domains. A transfer touches
  both and acquires their locks in lexicographic name order, so two
  transfers moving in opposite directions cannot deadlock.

TIMEOUTS:
  Acquisition honors the caller's context. A lock wait that exceeds the
  deadline returns ErrOperationTimedOut; nothing has been mutated at
  that point.
*/
package ledger

import (
	"context"
	"sort"
	"sync"
)

// registerLocks hands out one lock per register name. Locks are channel
// semaphores rather than sync.Mutex so a wait can be abandoned when the
// caller's context expires.
type registerLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newRegisterLocks() *registerLocks {
	return &registerLocks{locks: make(map[string]chan struct{})}
}

func (r *registerLocks) lockFor(name string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[name]
	if !ok {
		l = make(chan struct{}, 1)
		r.locks[name] = l
	}
	return l
}

// Acquire takes the locks for the named registers in lexicographic order,
// blocking until all are held or ctx is done. On success it returns a
// release function; on failure it releases any locks already held and
// returns ErrOperationTimedOut.
func (r *registerLocks) Acquire(ctx context.Context, names ...string) (func(), error) {
	ordered := make([]string, len(names))
	copy(ordered, names)
	sort.Strings(ordered)
	// Duplicate names would self-deadlock on the second send.
	deduped := make([]string, 0, len(ordered))
	for _, name := range ordered {
		if len(deduped) == 0 || name != deduped[len(deduped)-1] {
			deduped = append(deduped, name)
		}
	}
	ordered = deduped

	held := make([]chan struct{}, 0, len(ordered))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, name := range ordered {
		l := r.lockFor(name)
		select {
		case l <- struct{}{}:
			held = append(held, l)
		case <-ctx.Done():
			release()
			return nil, ErrOperationTimedOut
		}
	}
	return release, nil
}
