// Package adminview keeps the admin panel's local lists in step with the
// server. A change is applied locally as a Tx, then committed when the server
// accepts it or reverted item by item when it does not.
package adminview

import (
	"errors"
	"sync"
)

var (
	ErrNotInList = errors.New("adminview: item not in list")
	ErrTxDone    = errors.New("adminview: transaction already resolved")
)

// List is an ordered, keyed collection safe for concurrent use.
type List[K comparable, V any] struct {
	mu    sync.Mutex
	items []V
	key   func(V) K
}

func NewList[K comparable, V any](key func(V) K, items []V) *List[K, V] {
	l := &List[K, V]{key: key}
	l.Replace(items)
	return l
}

func (l *List[K, V]) Items() []V {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]V(nil), l.items...)
}

func (l *List[K, V]) Replace(items []V) {
	l.mu.Lock()
	l.items = append([]V(nil), items...)
	l.mu.Unlock()
}

func (l *List[K, V]) Get(k K) (V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i := l.index(k); i >= 0 {
		return l.items[i], true
	}
	var zero V
	return zero, false
}

func (l *List[K, V]) index(k K) int {
	for i, it := range l.items {
		if l.key(it) == k {
			return i
		}
	}
	return -1
}

// Update applies fn to the item with key k and returns the pending Tx.
func (l *List[K, V]) Update(k K, fn func(V) V) (*Tx[K, V], error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.index(k)
	if i < 0 {
		return nil, ErrNotInList
	}
	prev := l.items[i]
	l.items[i] = fn(prev)
	return &Tx[K, V]{list: l, key: k, prev: prev, index: i}, nil
}

// Remove drops the item with key k and returns the pending Tx.
func (l *List[K, V]) Remove(k K) (*Tx[K, V], error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.index(k)
	if i < 0 {
		return nil, ErrNotInList
	}
	prev := l.items[i]
	l.items = append(l.items[:i], l.items[i+1:]...)
	return &Tx[K, V]{list: l, key: k, prev: prev, index: i, removed: true}, nil
}
