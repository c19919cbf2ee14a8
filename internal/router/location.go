package router

import (
	"strings"
	"sync"
)

// Location is the browser address and session history. Push and Replace
// behave like assigning location.hash for fragment-only hrefs (listeners
// fire) and like history.pushState otherwise (they do not). Back and
// Forward always notify listeners.
type Location interface {
	Href() string
	Push(href string)
	Replace(href string)
	Back() bool
	Forward() bool
	Subscribe(fn func(href string)) (cancel func())
}

// MemoryLocation is an in-process Location.
type MemoryLocation struct {
	mu        sync.Mutex
	entries   []string
	index     int
	listeners map[int]func(string)
	nextID    int
}

// NewMemoryLocation starts the history at initial.
func NewMemoryLocation(initial string) *MemoryLocation {
	return &MemoryLocation{
		entries:   []string{initial},
		listeners: make(map[int]func(string)),
	}
}

func (l *MemoryLocation) Href() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[l.index]
}

// Push drops any forward entries and appends href.
func (l *MemoryLocation) Push(href string) {
	l.mu.Lock()
	prev := l.entries[l.index]
	l.entries = append(l.entries[:l.index+1], href)
	l.index++
	l.mu.Unlock()

	if hashChange(prev, href) {
		l.notify(href)
	}
}

func (l *MemoryLocation) Replace(href string) {
	l.mu.Lock()
	prev := l.entries[l.index]
	l.entries[l.index] = href
	l.mu.Unlock()

	if hashChange(prev, href) {
		l.notify(href)
	}
}

func (l *MemoryLocation) Back() bool {
	return l.move(-1)
}

func (l *MemoryLocation) Forward() bool {
	return l.move(1)
}

func (l *MemoryLocation) move(delta int) bool {
	l.mu.Lock()
	next := l.index + delta
	if next < 0 || next >= len(l.entries) {
		l.mu.Unlock()
		return false
	}
	l.index = next
	href := l.entries[next]
	l.mu.Unlock()

	l.notify(href)
	return true
}

// Len returns the number of session history entries.
func (l *MemoryLocation) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryLocation) Subscribe(fn func(href string)) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}
}

func (l *MemoryLocation) notify(href string) {
	l.mu.Lock()
	fns := make([]func(string), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(href)
	}
}

func hashChange(prev, next string) bool {
	return strings.HasPrefix(next, "#") && prev != next
}
