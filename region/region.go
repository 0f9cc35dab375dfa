package region

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	wasmjit "github.com/wippyai/wasm-jit"
	"github.com/wippyai/wasm-jit/errors"
)

// Region is an arena owning the memory behind one module: its interpreted
// instance and, once compiled, its native artifact. Everything adopted by a
// region is released together by Free, newest first.
//
// A region must outlive every function pointer published from the memory it
// owns; the compilation manager keeps it registered until the module is
// retired.
type Region struct {
	name      string
	owned     []wasmjit.Releaser
	allocated atomic.Int64
	mu        sync.Mutex
	freed     atomic.Bool
}

// New creates an empty region.
func New(name string) *Region {
	return &Region{name: name}
}

func (r *Region) Name() string {
	return r.name
}

// Adopt transfers rel into the region, accounting size bytes against it.
// Adopting into a freed region fails and leaves rel with the caller.
func (r *Region) Adopt(rel wasmjit.Releaser, size int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.freed.Load() {
		return errors.Closed(errors.PhaseRuntime, "region "+r.name)
	}
	r.owned = append(r.owned, rel)
	r.allocated.Add(size)
	return nil
}

// Allocated returns the bytes accounted against the region.
func (r *Region) Allocated() int64 {
	return r.allocated.Load()
}

// Len returns the number of adopted resources.
func (r *Region) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owned)
}

func (r *Region) Freed() bool {
	return r.freed.Load()
}

// Free releases every adopted resource in reverse adoption order.
// It is safe to call more than once; only the first call releases.
func (r *Region) Free(ctx context.Context) error {
	r.mu.Lock()
	if r.freed.Swap(true) {
		r.mu.Unlock()
		return nil
	}
	owned := r.owned
	r.owned = nil
	r.mu.Unlock()

	var err error
	for i := len(owned) - 1; i >= 0; i-- {
		err = multierr.Append(err, owned[i].Close(ctx))
	}
	r.allocated.Store(0)
	return err
}
