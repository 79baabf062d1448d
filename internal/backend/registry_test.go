package backend

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// go.opencensus.io starts a background worker in its package init; it is
	// not a leak from the code under test.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type fakeClient struct {
	name string
}

func (f *fakeClient) Narrate(ctx context.Context, primary, secondary string) (string, error) {
	return "narrated", nil
}

func (f *fakeClient) Name() string { return f.name }

func testRegistry(constructed *atomic.Int32) *Registry {
	r := NewRegistry()
	r.newClient = func(cfg Config) (Client, error) {
		constructed.Add(1)
		return &fakeClient{name: cfg.Deck + "/" + cfg.Style}, nil
	}
	return r
}

func TestRegistryCachesPerKey(t *testing.T) {
	var constructed atomic.Int32
	r := testRegistry(&constructed)

	a, err := r.Get(Config{Deck: "rider-waite", Style: "mystic"})
	require.NoError(t, err)
	b, err := r.Get(Config{Deck: "rider-waite", Style: "mystic"})
	require.NoError(t, err)
	c, err := r.Get(Config{Deck: "rider-waite", Style: "plain"})
	require.NoError(t, err)

	assert.Same(t, a.(*fakeClient), b.(*fakeClient))
	assert.NotSame(t, a.(*fakeClient), c.(*fakeClient))
	assert.Equal(t, int32(2), constructed.Load())
	assert.Equal(t, 2, r.Size())
}

func TestRegistryConcurrentSingleConstruction(t *testing.T) {
	var constructed atomic.Int32
	r := testRegistry(&constructed)

	const workers = 32
	var wg sync.WaitGroup
	clients := make([]Client, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clients[i], errs[i] = r.Get(Config{Deck: "thoth", Style: "scholarly"})
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, clients[0].(*fakeClient), clients[i].(*fakeClient))
	}
	assert.Equal(t, int32(1), constructed.Load())
}

func TestRegistryConstructionError(t *testing.T) {
	r := NewRegistry()

	// Default constructor requires an API key.
	_, err := r.Get(Config{Deck: "rider-waite", Style: "mystic"})
	require.Error(t, err)
	assert.Equal(t, 0, r.Size())

	// Failures are not cached; a later valid constructor succeeds.
	r.newClient = func(cfg Config) (Client, error) {
		return &fakeClient{name: "recovered"}, nil
	}
	c, err := r.Get(Config{Deck: "rider-waite", Style: "mystic"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", c.Name())
}
