package mcpcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	collabmock "github.com/aiworkforme/outreach-engine/internal/collab/mock"
	"github.com/aiworkforme/outreach-engine/internal/model"
	"github.com/aiworkforme/outreach-engine/pkg/logger"
)

func init() {
	// Initialize logger for tests
	logger.Log = zap.NewNop()
}

func TestGetOrFetch_MissThenHit(t *testing.T) {
	cache := NewCache(time.Minute)
	fetches := 0

	fetch := func(ctx context.Context) (string, error) {
		fetches++
		return "catalog summary", nil
	}

	first, err := cache.GetOrFetch(context.Background(), "lead-1:q", fetch)
	require.NoError(t, err)
	second, err := cache.GetOrFetch(context.Background(), "lead-1:q", fetch)
	require.NoError(t, err)

	assert.Equal(t, "catalog summary", first)
	assert.Equal(t, "catalog summary", second)
	assert.Equal(t, 1, fetches)
	assert.Equal(t, 1, cache.Len())
}

func TestGetOrFetch_KeysAreIndependent(t *testing.T) {
	cache := NewCache(time.Minute)

	a, err := cache.GetOrFetch(context.Background(), "lead-1:q", func(ctx context.Context) (string, error) {
		return "for lead one", nil
	})
	require.NoError(t, err)
	b, err := cache.GetOrFetch(context.Background(), "lead-2:q", func(ctx context.Context) (string, error) {
		return "for lead two", nil
	})
	require.NoError(t, err)

	assert.Equal(t, "for lead one", a)
	assert.Equal(t, "for lead two", b)
	assert.Equal(t, 2, cache.Len())
}

func TestGetOrFetch_ExpiredEntryRefetches(t *testing.T) {
	cache := NewCache(20 * time.Millisecond)
	fetches := 0

	fetch := func(ctx context.Context) (string, error) {
		fetches++
		return "fresh", nil
	}

	_, err := cache.GetOrFetch(context.Background(), "k", fetch)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	_, err = cache.GetOrFetch(context.Background(), "k", fetch)
	require.NoError(t, err)

	assert.Equal(t, 2, fetches)
}

func TestGetOrFetch_FetchErrorNotCached(t *testing.T) {
	cache := NewCache(time.Minute)
	calls := 0

	_, err := cache.GetOrFetch(context.Background(), "k", func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("tool unavailable")
	})
	require.Error(t, err)

	v, err := cache.GetOrFetch(context.Background(), "k", func(ctx context.Context) (string, error) {
		calls++
		return "recovered", nil
	})
	require.NoError(t, err)

	assert.Equal(t, "recovered", v)
	assert.Equal(t, 2, calls)
}

func TestGetOrFetch_ConcurrentCallersFetchOnce(t *testing.T) {
	cache := NewCache(time.Minute)
	var fetches int32

	fetch := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&fetches, 1)
		time.Sleep(20 * time.Millisecond)
		return "expensive result", nil
	}

	const callers = 16
	results := make([]string, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			v, err := cache.GetOrFetch(context.Background(), "shared", fetch)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))
	for _, v := range results {
		assert.Equal(t, "expensive result", v)
	}
}

func TestInvalidate_ForcesRefetch(t *testing.T) {
	cache := NewCache(time.Minute)
	fetches := 0

	fetch := func(ctx context.Context) (string, error) {
		fetches++
		return "v", nil
	}

	_, err := cache.GetOrFetch(context.Background(), "k", fetch)
	require.NoError(t, err)

	cache.Invalidate("k")
	assert.Equal(t, 0, cache.Len())

	_, err = cache.GetOrFetch(context.Background(), "k", fetch)
	require.NoError(t, err)

	assert.Equal(t, 2, fetches)
}

func TestCachingAssembler_DelegatesOncePerLeadAndQuery(t *testing.T) {
	inner := new(collabmock.ContextAssemblerMock)
	assembler := NewCachingAssembler(inner, time.Minute)

	lead := model.NewLead(nil)
	ws := model.NewWorkspace(nil)

	inner.On("BuildContext", mock.Anything, lead, ws, "pricing question").
		Return("retrieved context", nil)

	first, err := assembler.BuildContext(context.Background(), lead, ws, "pricing question")
	require.NoError(t, err)
	second, err := assembler.BuildContext(context.Background(), lead, ws, "pricing question")
	require.NoError(t, err)

	assert.Equal(t, "retrieved context", first)
	assert.Equal(t, "retrieved context", second)
	inner.AssertNumberOfCalls(t, "BuildContext", 1)
}

func TestCachingAssembler_DifferentQueriesMiss(t *testing.T) {
	inner := new(collabmock.ContextAssemblerMock)
	assembler := NewCachingAssembler(inner, time.Minute)

	lead := model.NewLead(nil)
	ws := model.NewWorkspace(nil)

	inner.On("BuildContext", mock.Anything, lead, ws, "pricing").Return("pricing ctx", nil)
	inner.On("BuildContext", mock.Anything, lead, ws, "shipping").Return("shipping ctx", nil)

	a, err := assembler.BuildContext(context.Background(), lead, ws, "pricing")
	require.NoError(t, err)
	b, err := assembler.BuildContext(context.Background(), lead, ws, "shipping")
	require.NoError(t, err)

	assert.Equal(t, "pricing ctx", a)
	assert.Equal(t, "shipping ctx", b)
	inner.AssertNumberOfCalls(t, "BuildContext", 2)
}

func TestCachingAssembler_ErrorPassesThrough(t *testing.T) {
	inner := new(collabmock.ContextAssemblerMock)
	assembler := NewCachingAssembler(inner, time.Minute)

	lead := model.NewLead(nil)
	ws := model.NewWorkspace(nil)

	inner.On("BuildContext", mock.Anything, lead, ws, "q").
		Return("", errors.New("mcp server down"))

	_, err := assembler.BuildContext(context.Background(), lead, ws, "q")

	assert.Error(t, err)
}

func TestContextKey_SeparatesLeads(t *testing.T) {
	assert.NotEqual(t, contextKey("lead-1", "q"), contextKey("lead-2", "q"))
	assert.NotEqual(t, contextKey("lead-1", "q1"), contextKey("lead-1", "q2"))
	assert.Equal(t, contextKey("lead-1", "q"), contextKey("lead-1", "q"))
}
