package cache

import (
	"container/list"
	"sync"
	"time"
)

// Key identifies one cached read. Every entry belongs to a user so that a
// write can drop all of that user's views at once.
type Key struct {
	UserID int64
	// Arg distinguishes reads of the same user, e.g. a movement window.
	Arg int
}

// LRUCache is a TTL cache with size-based eviction and a per-user index.
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[Key]*list.Element
	byUser  map[int64]map[Key]struct{}
	order   *list.List // front is most recently used
	now     func() time.Time
	// gen advances on every deletion. SetIfGen compares it under mu so a
	// value read before a deletion cannot be stored after it.
	gen uint64
}

type entry[T any] struct {
	key       Key
	value     T
	expiresAt time.Time
}

// NewLRUCache returns a cache of at most maxSize entries; zero means
// unbounded.
func NewLRUCache[T any](maxSize int, ttl time.Duration) *LRUCache[T] {
	return &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[Key]*list.Element),
		byUser:  make(map[int64]map[Key]struct{}),
		order:   list.New(),
		now:     time.Now,
	}
}

func (c *LRUCache[T]) Get(key Key) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[T])
	if !c.now().Before(e.expiresAt) {
		c.remove(el)
		return zero, false
	}
	c.order.MoveToFront(el)
	return e.value, true
}

func (c *LRUCache[T]) Set(key Key, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value)
}

// Generation returns the current deletion generation.
func (c *LRUCache[T]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// SetIfGen stores value only if no Delete or DeleteUser ran since gen was
// read. It reports whether the value was stored.
func (c *LRUCache[T]) SetIfGen(key Key, value T, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.set(key, value)
	return true
}

// set must be called with mu held.
func (c *LRUCache[T]) set(key Key, value T) {
	e := &entry[T]{key: key, value: value, expiresAt: c.now().Add(c.ttl)}
	if el, ok := c.items[key]; ok {
		el.Value = e
		c.order.MoveToFront(el)
		return
	}

	c.items[key] = c.order.PushFront(e)
	keys := c.byUser[key.UserID]
	if keys == nil {
		keys = make(map[Key]struct{})
		c.byUser[key.UserID] = keys
	}
	keys[key] = struct{}{}

	if c.maxSize > 0 && c.order.Len() > c.maxSize {
		c.remove(c.order.Back())
	}
}

func (c *LRUCache[T]) Delete(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	if el, ok := c.items[key]; ok {
		c.remove(el)
	}
}

// DeleteUser drops every entry of userID and returns how many were cached.
func (c *LRUCache[T]) DeleteUser(userID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	keys := c.byUser[userID]
	n := 0
	for k := range keys {
		if el, ok := c.items[k]; ok {
			c.remove(el)
			n++
		}
	}
	return n
}

// remove must be called with mu held.
func (c *LRUCache[T]) remove(el *list.Element) {
	e := c.order.Remove(el).(*entry[T])
	delete(c.items, e.key)
	if keys := c.byUser[e.key.UserID]; keys != nil {
		delete(keys, e.key)
		if len(keys) == 0 {
			delete(c.byUser, e.key.UserID)
		}
	}
}

// CleanExpired removes expired entries and returns how many were dropped.
func (c *LRUCache[T]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*entry[T]).expiresAt) {
			c.remove(el)
			n++
		}
		el = prev
	}
	return n
}

func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
