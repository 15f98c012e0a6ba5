package shm

import (
	"sync"

	"github.com/pkg/errors"
)

// The in-process backend keeps named regions in a package registry so
// Create/OpenExisting keep their rendezvous semantics when controller and
// worker live in one process.

type memRegion struct {
	rec      record
	mu       sync.Mutex
	cmdCond  *sync.Cond
	respCond *sync.Cond
}

var (
	regionsMu sync.Mutex
	regions   = map[string]*memRegion{}
)

// Create allocates a named in-process region. It fails if the name is
// already taken.
func Create(name string) (*Channel, error) {
	regionsMu.Lock()
	defer regionsMu.Unlock()
	if _, ok := regions[name]; ok {
		return nil, errors.Errorf("shm: region %q already exists", name)
	}
	r := &memRegion{}
	r.cmdCond = sync.NewCond(&r.mu)
	r.respCond = sync.NewCond(&r.mu)
	regions[name] = r
	return r.attach(name), nil
}

// OpenExisting attaches to a region created earlier in this process.
func OpenExisting(name string) (*Channel, error) {
	regionsMu.Lock()
	defer regionsMu.Unlock()
	r, ok := regions[name]
	if !ok {
		return nil, errors.Errorf("shm: region %q not found", name)
	}
	return r.attach(name), nil
}

func (r *memRegion) attach(name string) *Channel {
	return &Channel{
		rec:      &r.rec,
		mu:       &r.mu,
		cmdCond:  r.cmdCond,
		respCond: r.respCond,
		remove: func() error {
			regionsMu.Lock()
			defer regionsMu.Unlock()
			delete(regions, name)
			return nil
		},
	}
}
