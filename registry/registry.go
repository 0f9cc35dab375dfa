package registry

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrAbsent = errors.New("registry: key was never reserved")
	ErrFilled = errors.New("registry: slot already filled")
)

// State of a key in a registry.
type State uint8

const (
	StateAbsent   State = iota // key never reserved, or removed
	StateReserved              // placeholder present, no object yet
	StateFilled                // object transferred in
)

func (s State) String() string {
	switch s {
	case StateReserved:
		return "reserved"
	case StateFilled:
		return "filled"
	default:
		return "absent"
	}
}

type slot[V any] struct {
	value atomic.Pointer[V]
}

// Registry maps keys to owned objects. A key is reserved first and filled
// later by an independent call, so a key can be absent, reserved or filled.
// All operations are safe for concurrent use without external locking.
type Registry[K comparable, V any] struct {
	// tomb marks a slot removed while a Fill raced with Remove.
	tomb   *V
	slots  sync.Map
	len    atomic.Int64
	filled atomic.Int64
}

// New creates an empty registry.
func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{tomb: new(V)}
}

// Reserve inserts an empty placeholder for k. It returns false if k is
// already present.
func (r *Registry[K, V]) Reserve(k K) bool {
	_, loaded := r.slots.LoadOrStore(k, &slot[V]{})
	if !loaded {
		r.len.Add(1)
	}
	return !loaded
}

// Fill moves v into the placeholder for k. The registry owns v on success;
// on error the caller keeps it.
func (r *Registry[K, V]) Fill(k K, v *V) error {
	s, ok := r.load(k)
	if !ok {
		return ErrAbsent
	}
	if s.value.CompareAndSwap(nil, v) {
		r.filled.Add(1)
		return nil
	}
	if s.value.Load() == r.tomb {
		return ErrAbsent
	}
	return ErrFilled
}

// Get returns the object stored under k, if filled.
func (r *Registry[K, V]) Get(k K) (*V, bool) {
	s, ok := r.load(k)
	if !ok {
		return nil, false
	}
	v := s.value.Load()
	if v == nil || v == r.tomb {
		return nil, false
	}
	return v, true
}

// State reports whether k is absent, reserved or filled.
func (r *Registry[K, V]) State(k K) State {
	s, ok := r.load(k)
	if !ok {
		return StateAbsent
	}
	switch v := s.value.Load(); {
	case v == nil:
		return StateReserved
	case v == r.tomb:
		return StateAbsent
	default:
		return StateFilled
	}
}

// Remove deletes k and hands its object, if any, back to the caller.
// The returned state is the one k had before removal.
func (r *Registry[K, V]) Remove(k K) (*V, State) {
	raw, ok := r.slots.LoadAndDelete(k)
	if !ok {
		return nil, StateAbsent
	}
	r.len.Add(-1)
	v := raw.(*slot[V]).value.Swap(r.tomb)
	if v == nil {
		return nil, StateReserved
	}
	r.filled.Add(-1)
	return v, StateFilled
}

// Range calls fn for every filled slot until fn returns false.
func (r *Registry[K, V]) Range(fn func(K, *V) bool) {
	r.slots.Range(func(key, raw any) bool {
		v := raw.(*slot[V]).value.Load()
		if v == nil || v == r.tomb {
			return true
		}
		return fn(key.(K), v)
	})
}

// Len returns the number of present keys, reserved or filled.
func (r *Registry[K, V]) Len() int {
	return int(r.len.Load())
}

// Filled returns the number of filled slots.
func (r *Registry[K, V]) Filled() int {
	return int(r.filled.Load())
}

func (r *Registry[K, V]) load(k K) (*slot[V], bool) {
	raw, ok := r.slots.Load(k)
	if !ok {
		return nil, false
	}
	return raw.(*slot[V]), true
}
