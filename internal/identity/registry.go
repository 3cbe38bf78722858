// Package identity assigns each vehicle a persistent display colour.
package identity

import (
	"fmt"
	"math/rand/v2"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Policy decides what happens to the colour of an id that leaves the simulation.
type Policy int

const (
	// PolicySticky keeps a colour for the life of the registry. A recycled id
	// inherits the colour of its previous owner.
	PolicySticky Policy = iota
	// PolicyFresh forgets ids missing from the latest tick, so a recycled id
	// is treated as a new vehicle.
	PolicyFresh
)

// ParsePolicy maps a config value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "sticky":
		return PolicySticky, nil
	case "fresh":
		return PolicyFresh, nil
	}
	return PolicySticky, fmt.Errorf("unknown identity policy %q", s)
}

// store is the backing map of a Registry.
type store interface {
	get(id string) (Color, bool)
	put(id string, c Color)
	remove(id string)
	keys() []string
	len() int
	purge()
}

// Registry maps vehicle ids to colours. Safe for concurrent use.
//
// The unbounded registry grows by one entry per distinct id ever seen. Long
// running deployments facing many distinct ids should use NewBoundedRegistry
// or PolicyFresh.
type Registry struct {
	mu     sync.Mutex
	colors store
	rng    *rand.Rand
	policy Policy
	limit  int // 0 = unbounded
}

// NewRegistry creates an unbounded registry. A nil rng seeds one randomly.
func NewRegistry(policy Policy, rng *rand.Rand) *Registry {
	return &Registry{
		colors: mapStore(make(map[string]Color, 256)),
		rng:    orRandom(rng),
		policy: policy,
	}
}

// NewBoundedRegistry creates a registry holding at most size entries; the
// least recently looked-up id is evicted first.
func NewBoundedRegistry(size int, policy Policy, rng *rand.Rand) (*Registry, error) {
	cache, err := lru.New[string, Color](size)
	if err != nil {
		return nil, fmt.Errorf("identity lru: %w", err)
	}
	return &Registry{
		colors: lruStore{cache},
		rng:    orRandom(rng),
		policy: policy,
		limit:  size,
	}, nil
}

func orRandom(rng *rand.Rand) *rand.Rand {
	if rng != nil {
		return rng
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// ColorOf returns the colour of id, assigning a random one on first sight.
func (r *Registry) ColorOf(id string) Color {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.colors.get(id); ok {
		return c
	}
	c := randomColor(r.rng)
	r.colors.put(id, c)
	return c
}

// Lookup returns the colour of id without assigning one.
func (r *Registry) Lookup(id string) (Color, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.colors.get(id)
}

// Retain applies the registry policy to the set of ids live in the latest
// tick. Under PolicyFresh every other id is forgotten; under PolicySticky it
// is a no-op. Returns the number of ids forgotten.
func (r *Registry) Retain(live []string) int {
	if r.policy != PolicyFresh {
		return 0
	}
	keep := make(map[string]struct{}, len(live))
	for _, id := range live {
		keep[id] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for _, id := range r.colors.keys() {
		if _, ok := keep[id]; !ok {
			r.colors.remove(id)
			dropped++
		}
	}
	return dropped
}

// Reset forgets every assignment.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.colors.purge()
}

// Capacity returns the entry limit of a bounded registry, 0 when unbounded.
// A bounded registry smaller than the live fleet evicts live ids, which then
// change colour.
func (r *Registry) Capacity() int { return r.limit }

// Len returns the number of ids holding a colour.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.colors.len()
}

type mapStore map[string]Color

func (m mapStore) get(id string) (Color, bool) {
	c, ok := m[id]
	return c, ok
}
func (m mapStore) put(id string, c Color) { m[id] = c }
func (m mapStore) remove(id string)       { delete(m, id) }
func (m mapStore) len() int               { return len(m) }
func (m mapStore) purge()                 { clear(m) }

func (m mapStore) keys() []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}

type lruStore struct {
	c *lru.Cache[string, Color]
}

func (s lruStore) get(id string) (Color, bool) { return s.c.Get(id) }
func (s lruStore) put(id string, c Color)      { s.c.Add(id, c) }
func (s lruStore) remove(id string)            { s.c.Remove(id) }
func (s lruStore) keys() []string              { return s.c.Keys() }
func (s lruStore) len() int                    { return s.c.Len() }
func (s lruStore) purge()                      { s.c.Purge() }
