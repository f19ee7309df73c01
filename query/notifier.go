package query

import (
	"slices"
	"sync"
)

// Notifier fans out rerun decisions to its subscribers. The zero value is ready to use.
type Notifier struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Rerun)
}

func (n *Notifier) Subscribe(fn func(Rerun)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.subs == nil {
		n.subs = make(map[int]func(Rerun))
	}
	id := n.next
	n.next++
	n.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.subs, id)
		})
	}
}

// Notify calls every subscriber if the rerun requires any work. Subscribers are called
// outside of the notifier's lock in subscription order.
func (n *Notifier) Notify(rr Rerun) {
	if !rr.ShouldRerun() {
		return
	}

	n.mu.Lock()
	ids := make([]int, 0, len(n.subs))
	for id := range n.subs {
		ids = append(ids, id)
	}
	fns := make([]func(Rerun), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, n.subs[id])
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(rr)
	}
}
