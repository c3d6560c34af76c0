package subscription_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fardannozami/healthsync/internal/app/subscription"
	"github.com/fardannozami/healthsync/internal/domain"
)

type handle struct {
	closed atomic.Int32
	err    error
	panics bool
}

func (h *handle) Close() error {
	h.closed.Add(1)
	if h.panics {
		panic("boom")
	}
	return h.err
}

func TestTeardownAll_Twice(t *testing.T) {
	r := subscription.NewRegistry(nil)
	a, b := &handle{}, &handle{}
	r.Register("logs", a)
	r.Register("plans", b)
	require.Equal(t, 2, r.Len())

	require.NoError(t, r.TeardownAll())
	assert.Equal(t, 0, r.Len())
	require.NoError(t, r.TeardownAll())
	assert.Equal(t, 0, r.Len())

	assert.EqualValues(t, 1, a.closed.Load())
	assert.EqualValues(t, 1, b.closed.Load())
}

func TestTeardownAll_ContinuesPastFailures(t *testing.T) {
	r := subscription.NewRegistry(nil)
	failing := &handle{err: errors.New("permission denied")}
	panicking := &handle{panics: true}
	healthy := &handle{}
	r.Register("a", failing)
	r.Register("b", panicking)
	r.Register("c", healthy)

	err := r.TeardownAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.Contains(t, err.Error(), "panic")

	assert.EqualValues(t, 1, healthy.closed.Load())
	assert.Equal(t, 0, r.Len())
	assert.NoError(t, r.EnsureEmpty())
}

func TestRegister_ReplacesSameKey(t *testing.T) {
	r := subscription.NewRegistry(nil)
	old, fresh := &handle{}, &handle{}
	r.Register("logs", old)
	r.Register("logs", fresh)

	assert.EqualValues(t, 1, old.closed.Load())
	assert.EqualValues(t, 0, fresh.closed.Load())
	assert.Equal(t, []string{"logs"}, r.Keys())
}

func TestSwap_ReturnsReplacedOpen(t *testing.T) {
	r := subscription.NewRegistry(nil)
	old, fresh := &handle{}, &handle{}
	assert.Nil(t, r.Swap("logs", old))

	prev := r.Swap("logs", fresh)
	assert.Same(t, old, prev)
	assert.EqualValues(t, 0, old.closed.Load(), "caller closes the replaced handle")
	assert.Equal(t, 1, r.Len())

	require.NoError(t, r.TeardownAll())
	assert.EqualValues(t, 1, fresh.closed.Load())
	assert.EqualValues(t, 0, old.closed.Load())
}

func TestEnsureEmpty(t *testing.T) {
	r := subscription.NewRegistry(nil)
	r.Register("logs", domain.DisposableFunc(func() error { return nil }))

	err := r.EnsureEmpty()
	require.ErrorIs(t, err, domain.ErrRegistryNotEmpty)

	require.NoError(t, r.Release("logs"))
	require.NoError(t, r.Release("logs"))
	assert.NoError(t, r.EnsureEmpty())
}
