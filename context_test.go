//go:build unit

package courier

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestContext_FreshCorrelationID(t *testing.T) {
	first := NewRequestContext()
	second := NewRequestContext()

	_, err := uuid.Parse(first.CorrelationID())
	require.NoError(t, err)
	assert.NotEqual(t, first.CorrelationID(), second.CorrelationID())
}

func TestNewRequestContextWithCorrelation(t *testing.T) {
	requestContext := NewRequestContextWithCorrelation("corr-42")

	assert.Equal(t, "corr-42", requestContext.CorrelationID())
}

func TestRequestContext_Bag(t *testing.T) {
	requestContext := NewRequestContext()

	_, ok := requestContext.Get("tenant")
	assert.False(t, ok)

	requestContext.Set("tenant", "acme")

	value, ok := requestContext.Get("tenant")
	require.True(t, ok)
	assert.Equal(t, "acme", value)

	requestContext.Set("tenant", "globex")

	value, _ = requestContext.Get("tenant")
	assert.Equal(t, "globex", value)
}

func TestRequestContext_NilReceiverIsSafe(t *testing.T) {
	var requestContext *RequestContext

	assert.Empty(t, requestContext.CorrelationID())

	requestContext.Set("key", "value")

	_, ok := requestContext.Get("key")
	assert.False(t, ok)
}

func TestRequestContext_ConcurrentBagAccess(t *testing.T) {
	requestContext := NewRequestContext()

	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			requestContext.Set("counter", 1)
			_, _ = requestContext.Get("counter")
		}()
	}

	wg.Wait()

	_, ok := requestContext.Get("counter")
	assert.True(t, ok)
}

func TestContextWithRequestContext_RoundTrip(t *testing.T) {
	requestContext := NewRequestContext()

	ctx := ContextWithRequestContext(context.Background(), requestContext)

	got, ok := RequestContextFrom(ctx)
	require.True(t, ok)
	assert.Same(t, requestContext, got)
}

func TestRequestContextFrom_Absent(t *testing.T) {
	_, ok := RequestContextFrom(context.Background())
	assert.False(t, ok)

	_, ok = RequestContextFrom(nil)
	assert.False(t, ok)
}

func TestContextWithRequestContext_NilInputs(t *testing.T) {
	ctx := ContextWithRequestContext(nil, nil)
	require.NotNil(t, ctx)

	_, ok := RequestContextFrom(ctx)
	assert.False(t, ok, "a nil request context must not be attached")
}
