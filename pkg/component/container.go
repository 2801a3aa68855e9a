// Package component provides the lazy service container that wires the
// system together. Factories are registered by name and resolved on first
// use; singletons are constructed exactly once with per-name serialization
// and construction cycles are detected and reported as typed errors.
package component

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory constructs a service. It receives the container so it can resolve
// its dependencies by name.
type Factory func(c *Container) (any, error)

// CycleError reports a dependency cycle found during construction.
type CycleError struct {
	Service string
	Chain   []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected while constructing '%s': %s",
		e.Service, strings.Join(append(e.Chain, e.Service), " -> "))
}

type registration struct {
	factory   Factory
	singleton bool

	mu       sync.Mutex
	building chan struct{} // non-nil while a factory run is in flight
	instance any
	built    bool
	buildErr error
}

// Container is a lazy, thread-safe service registry.
type Container struct {
	mu       sync.RWMutex
	services map[string]*registration

	// resolveMu guards the construction stack used for cycle detection.
	// A name can only appear twice on the stack through re-entrant
	// resolution: concurrent callers of the same singleton wait on the
	// building channel instead of entering the factory.
	resolveMu sync.Mutex
	resolving []string
}

// New creates an empty container.
func New() *Container {
	return &Container{
		services: make(map[string]*registration),
	}
}

// Register adds a named factory. When singleton is true the factory runs at
// most once and the result is cached.
func (c *Container) Register(name string, factory Factory, singleton bool) error {
	if name == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory for service '%s' cannot be nil", name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.services[name]; exists {
		return fmt.Errorf("service '%s' already registered", name)
	}

	c.services[name] = &registration{factory: factory, singleton: singleton}
	return nil
}

// RegisterInstance adds an already-constructed service.
func (c *Container) RegisterInstance(name string, instance any) error {
	return c.Register(name, func(*Container) (any, error) { return instance, nil }, true)
}

// Get resolves a service by name, constructing it if needed.
func (c *Container) Get(name string) (any, error) {
	c.mu.RLock()
	reg, exists := c.services[name]
	c.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("service '%s' not registered", name)
	}

	if !reg.singleton {
		return c.construct(name, reg)
	}

	for {
		reg.mu.Lock()
		if reg.built {
			instance, err := reg.instance, reg.buildErr
			reg.mu.Unlock()
			return instance, err
		}
		if reg.building != nil {
			// Another caller is constructing this singleton. If that
			// caller is us (re-entrant factory), the stack check in
			// construct would never run, so check here first.
			if c.isResolving(name) {
				chain := c.resolvingChain()
				reg.mu.Unlock()
				return nil, &CycleError{Service: name, Chain: chain}
			}
			done := reg.building
			reg.mu.Unlock()
			<-done
			continue
		}
		reg.building = make(chan struct{})
		reg.mu.Unlock()
		break
	}

	instance, err := c.construct(name, reg)

	reg.mu.Lock()
	reg.instance = instance
	reg.buildErr = err
	reg.built = err == nil
	close(reg.building)
	reg.building = nil
	reg.mu.Unlock()

	return instance, err
}

func (c *Container) isResolving(name string) bool {
	c.resolveMu.Lock()
	defer c.resolveMu.Unlock()
	for _, inFlight := range c.resolving {
		if inFlight == name {
			return true
		}
	}
	return false
}

func (c *Container) resolvingChain() []string {
	c.resolveMu.Lock()
	defer c.resolveMu.Unlock()
	chain := make([]string, len(c.resolving))
	copy(chain, c.resolving)
	return chain
}

// construct runs the factory with cycle detection.
func (c *Container) construct(name string, reg *registration) (any, error) {
	c.resolveMu.Lock()
	for _, inFlight := range c.resolving {
		if inFlight == name {
			chain := make([]string, len(c.resolving))
			copy(chain, c.resolving)
			c.resolveMu.Unlock()
			return nil, &CycleError{Service: name, Chain: chain}
		}
	}
	c.resolving = append(c.resolving, name)
	c.resolveMu.Unlock()

	defer func() {
		c.resolveMu.Lock()
		c.resolving = c.resolving[:len(c.resolving)-1]
		c.resolveMu.Unlock()
	}()

	instance, err := reg.factory(c)
	if err != nil {
		if _, ok := err.(*CycleError); ok {
			return nil, err
		}
		return nil, fmt.Errorf("failed to construct service '%s': %w", name, err)
	}
	return instance, nil
}

// MustGet resolves a service or panics. Intended for wiring code where a
// missing service is a programming error.
func (c *Container) MustGet(name string) any {
	instance, err := c.Get(name)
	if err != nil {
		panic(err)
	}
	return instance
}

// Has reports whether a service name is registered.
func (c *Container) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, exists := c.services[name]
	return exists
}

// List returns the registered service names in sorted order.
func (c *Container) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.services))
	for name := range c.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve is a typed helper around Get.
func Resolve[T any](c *Container, name string) (T, error) {
	var zero T
	instance, err := c.Get(name)
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("service '%s' has type %T, not %T", name, instance, zero)
	}
	return typed, nil
}
