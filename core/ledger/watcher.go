package ledger

import "sync"

// Observer is the interface to implement to watch the new entries of the
// ledger.
type Observer interface {
	NotifyCallback(entry Entry)
}

// watcher keeps the list of observers and notifies them one after each other.
type watcher struct {
	sync.RWMutex

	observers map[Observer]struct{}
}

func newWatcher() *watcher {
	return &watcher{
		observers: make(map[Observer]struct{}),
	}
}

func (w *watcher) Add(observer Observer) {
	w.Lock()
	w.observers[observer] = struct{}{}
	w.Unlock()
}

func (w *watcher) Remove(observer Observer) {
	w.Lock()
	delete(w.observers, observer)
	w.Unlock()
}

func (w *watcher) Notify(entry Entry) {
	w.RLock()
	defer w.RUnlock()

	for obs := range w.observers {
		obs.NotifyCallback(entry)
	}
}

// observer forwards the entries to a channel. An entry is dropped when the
// channel is full, which means the reader has to catch up with Range anyway.
//
// - implements ledger.Observer
type observer struct {
	ch chan Entry
}

func (obs observer) NotifyCallback(entry Entry) {
	select {
	case obs.ch <- entry:
	default:
	}
}
