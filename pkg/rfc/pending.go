package rfc

import "sync"

// waiter is a single-shot continuation pair installed when a call is
// issued. Exactly one of resolve/reject is ever invoked, exactly once.
type waiter struct {
	resolve func(any)
	reject  func(error)
}

// pendingTable is the Communicator's private call-id -> waiter map. Go's
// runtime is actually multithreaded, unlike the single-threaded-cooperative
// runtimes this protocol was first built for, so the mutex here serializes
// access that would otherwise be implicit.
type pendingTable struct {
	mu      sync.Mutex
	waiters map[uint64]waiter
}

func newPendingTable() *pendingTable {
	return &pendingTable{waiters: make(map[uint64]waiter)}
}

// insert records a fresh waiter under uid. Collisions are impossible
// because uids are freshly minted by the sequence counter.
func (p *pendingTable) insert(uid uint64, resolve func(any), reject func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waiters[uid] = waiter{resolve: resolve, reject: reject}
}

// take destructively looks up uid, returning ok=false if no such call is
// outstanding (e.g. a late reply arriving after destruction).
func (p *pendingTable) take(uid uint64) (waiter, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.waiters[uid]
	if ok {
		delete(p.waiters, uid)
	}
	return w, ok
}

// clear rejects every outstanding waiter with err and empties the table.
// Called exactly once by the Communicator's destructor.
func (p *pendingTable) clear(err error) {
	p.mu.Lock()
	waiters := p.waiters
	p.waiters = make(map[uint64]waiter)
	p.mu.Unlock()

	for _, w := range waiters {
		w.reject(err)
	}
}

// len reports the number of outstanding calls — used by internal/monitor
// and has no effect on dispatch semantics.
func (p *pendingTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}
