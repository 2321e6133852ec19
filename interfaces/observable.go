package interfaces

import "sync"

type Observer interface {
	Notify(object interface{})
}

type Observable interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
}

// ObserverList is a goroutine-safe Observable that fans out notifications
// in subscription order. Observers must be comparable (pointer types).
type ObserverList struct {
	mu   sync.RWMutex
	list []Observer
}

func (l *ObserverList) Subscribe(observer Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.list = append(l.list, observer)
}

func (l *ObserverList) Unsubscribe(observer Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, o := range l.list {
		if o == observer {
			l.list = append(l.list[:i], l.list[i+1:]...)
			return
		}
	}
}

func (l *ObserverList) Notify(object interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, o := range l.list {
		o.Notify(object)
	}
}

func (l *ObserverList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.list)
}
