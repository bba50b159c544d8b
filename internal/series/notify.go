package series

import "sync"

// Change describes a mutation that invalidates previously derived instances
// for the named series.
type Change struct {
	SeriesIDs []string
}

// Notifier is an explicit observer registration for series changes. It
// replaces the ambient event-bus signaling the UI layer used to rely on:
// interested parties subscribe, mutations publish. Callbacks run
// synchronously on the mutating goroutine and should be quick.
type Notifier struct {
	mu   sync.RWMutex
	subs []func(Change)
}

func (n *Notifier) Subscribe(fn func(Change)) {
	if fn == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, fn)
}

func (n *Notifier) publish(ids ...string) {
	if len(ids) == 0 {
		return
	}
	n.mu.RLock()
	subs := make([]func(Change), len(n.subs))
	copy(subs, n.subs)
	n.mu.RUnlock()

	ch := Change{SeriesIDs: ids}
	for _, fn := range subs {
		fn(ch)
	}
}
