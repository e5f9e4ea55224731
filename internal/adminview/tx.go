package adminview

import (
	"slices"
	"sync"
)

// Tx is one tentative local change. Revert restores exactly the item it
// touched; changes made to other items meanwhile are kept.
type Tx[K comparable, V any] struct {
	list    *List[K, V]
	key     K
	prev    V
	index   int
	removed bool

	once sync.Once
}

func (t *Tx[K, V]) finish() bool {
	first := false
	t.once.Do(func() { first = true })
	return first
}

// Commit keeps the tentative change.
func (t *Tx[K, V]) Commit() error {
	if !t.finish() {
		return ErrTxDone
	}
	return nil
}

// Revert puts the prior item back. A reverted removal is reinserted at its
// old position, clamped to the current length. A reverted update of an item
// that has since been removed is a no-op.
func (t *Tx[K, V]) Revert() error {
	if !t.finish() {
		return ErrTxDone
	}
	l := t.list
	l.mu.Lock()
	defer l.mu.Unlock()

	if t.removed {
		if l.index(t.key) >= 0 {
			return nil
		}
		at := min(t.index, len(l.items))
		l.items = slices.Insert(l.items, at, t.prev)
		return nil
	}
	if i := l.index(t.key); i >= 0 {
		l.items[i] = t.prev
	}
	return nil
}

// Resolve commits when err is nil and reverts otherwise, returning err.
func (t *Tx[K, V]) Resolve(err error) error {
	if err == nil {
		return t.Commit()
	}
	if rerr := t.Revert(); rerr != nil {
		return rerr
	}
	return err
}
