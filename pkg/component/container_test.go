package component

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	name string
}

func TestRegisterValidation(t *testing.T) {
	c := New()

	require.Error(t, c.Register("", func(*Container) (any, error) { return nil, nil }, true))
	require.Error(t, c.Register("w", nil, true))

	require.NoError(t, c.Register("w", func(*Container) (any, error) { return &widget{}, nil }, true))
	require.Error(t, c.Register("w", func(*Container) (any, error) { return &widget{}, nil }, true))
}

func TestGetUnknownService(t *testing.T) {
	c := New()

	_, err := c.Get("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestSingletonConstructedOnceUnderConcurrency(t *testing.T) {
	c := New()
	var calls atomic.Int32
	require.NoError(t, c.Register("w", func(*Container) (any, error) {
		calls.Add(1)
		return &widget{name: "shared"}, nil
	}, true))

	const goroutines = 16
	instances := make([]any, goroutines)
	errs := make([]error, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			instances[i], errs[i] = c.Get("w")
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := range instances {
		require.NoError(t, errs[i])
		assert.Same(t, instances[0], instances[i])
	}
}

func TestTransientConstructedPerGet(t *testing.T) {
	c := New()
	var calls int
	require.NoError(t, c.Register("w", func(*Container) (any, error) {
		calls++
		return &widget{}, nil
	}, false))

	first, err := c.Get("w")
	require.NoError(t, err)
	second, err := c.Get("w")
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.NotSame(t, first, second)
}

func TestFailedSingletonRetriesConstruction(t *testing.T) {
	c := New()
	var calls int
	require.NoError(t, c.Register("flaky", func(*Container) (any, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("backend offline")
		}
		return &widget{name: "recovered"}, nil
	}, true))

	_, err := c.Get("flaky")
	require.Error(t, err)

	instance, err := c.Get("flaky")
	require.NoError(t, err)
	assert.Equal(t, "recovered", instance.(*widget).name)
	assert.Equal(t, 2, calls)
}

func TestDependencyCycleDetected(t *testing.T) {
	c := New()
	require.NoError(t, c.Register("a", func(c *Container) (any, error) { return c.Get("b") }, true))
	require.NoError(t, c.Register("b", func(c *Container) (any, error) { return c.Get("a") }, true))

	_, err := c.Get("a")
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, "a", cycle.Service)
	assert.Contains(t, err.Error(), "a -> b -> a")
}

func TestSelfCycleDetected(t *testing.T) {
	c := New()
	require.NoError(t, c.Register("self", func(c *Container) (any, error) { return c.Get("self") }, true))

	_, err := c.Get("self")
	var cycle *CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, "self", cycle.Service)
}

func TestCycleErrorIsNotCached(t *testing.T) {
	c := New()
	require.NoError(t, c.Register("a", func(c *Container) (any, error) { return c.Get("b") }, true))
	require.NoError(t, c.Register("b", func(c *Container) (any, error) { return c.Get("a") }, true))

	_, err := c.Get("a")
	require.Error(t, err)

	// A fixed dependency graph would resolve; the failure above must not
	// have marked the singleton as built.
	var cycle *CycleError
	_, err = c.Get("a")
	require.ErrorAs(t, err, &cycle)
}

func TestRegisterInstance(t *testing.T) {
	c := New()
	shared := &widget{name: "prebuilt"}
	require.NoError(t, c.RegisterInstance("w", shared))

	instance, err := c.Get("w")
	require.NoError(t, err)
	assert.Same(t, shared, instance)
	assert.True(t, c.Has("w"))
	assert.False(t, c.Has("missing"))
}

func TestListReturnsSortedNames(t *testing.T) {
	c := New()
	require.NoError(t, c.RegisterInstance("zeta", &widget{}))
	require.NoError(t, c.RegisterInstance("alpha", &widget{}))

	assert.Equal(t, []string{"alpha", "zeta"}, c.List())
}

func TestMustGetPanicsOnMissing(t *testing.T) {
	c := New()
	assert.Panics(t, func() { c.MustGet("missing") })
}

func TestResolveChecksType(t *testing.T) {
	c := New()
	require.NoError(t, c.RegisterInstance("w", &widget{name: "typed"}))

	w, err := Resolve[*widget](c, "w")
	require.NoError(t, err)
	assert.Equal(t, "typed", w.name)

	_, err = Resolve[string](c, "w")
	require.Error(t, err)
}
