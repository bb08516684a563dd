package store

import "sync"

// Notifier fans change signals out to the subscriptions watching a path.
// Signals coalesce: a watcher that has not consumed the previous signal
// does not queue another.
type Notifier struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{subs: map[string]map[chan struct{}]struct{}{}}
}

// Watch registers interest in path. The returned cancel func must be called
// once the watcher is done; it closes the channel.
func (n *Notifier) Watch(path string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	if n.subs[path] == nil {
		n.subs[path] = map[chan struct{}]struct{}{}
	}
	n.subs[path][ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs[path], ch)
			if len(n.subs[path]) == 0 {
				delete(n.subs, path)
			}
			n.mu.Unlock()
			close(ch)
		})
	}
}

func (n *Notifier) Notify(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs[path] {
		signal(ch)
	}
}

func (n *Notifier) NotifyAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, set := range n.subs {
		for ch := range set {
			signal(ch)
		}
	}
}

// Watchers returns the number of active watchers on path.
func (n *Notifier) Watchers(path string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs[path])
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
