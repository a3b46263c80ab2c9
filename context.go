package courier

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// RequestContext is the per-invocation bag of correlation metadata threaded
// through a pipeline. It is created by the processor for each call, passed
// by reference to every behavior, and discarded when the call returns. It
// is never persisted.
type RequestContext struct {
	correlationID string

	mu  sync.RWMutex
	bag map[string]any
}

// NewRequestContext creates a request context with a fresh correlation ID.
func NewRequestContext() *RequestContext {
	return NewRequestContextWithCorrelation(uuid.NewString())
}

// NewRequestContextWithCorrelation creates a request context bound to an
// existing correlation ID, for reply flows.
func NewRequestContextWithCorrelation(correlationID string) *RequestContext {
	return &RequestContext{
		correlationID: correlationID,
		bag:           make(map[string]any),
	}
}

// CorrelationID returns the correlation ID assigned at creation.
func (requestContext *RequestContext) CorrelationID() string {
	if requestContext == nil {
		return ""
	}

	return requestContext.correlationID
}

// Set stores a value in the bag. Behaviors use this to annotate the call
// for later behaviors in the same pipeline.
func (requestContext *RequestContext) Set(key string, value any) {
	if requestContext == nil {
		return
	}

	requestContext.mu.Lock()
	defer requestContext.mu.Unlock()

	if requestContext.bag == nil {
		requestContext.bag = make(map[string]any)
	}

	requestContext.bag[key] = value
}

// Get retrieves a value previously stored in the bag.
func (requestContext *RequestContext) Get(key string) (any, bool) {
	if requestContext == nil {
		return nil, false
	}

	requestContext.mu.RLock()
	defer requestContext.mu.RUnlock()

	value, ok := requestContext.bag[key]

	return value, ok
}

type requestContextKey struct{}

// ContextWithRequestContext attaches a request context to ctx.
func ContextWithRequestContext(ctx context.Context, requestContext *RequestContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	if requestContext == nil {
		return ctx
	}

	return context.WithValue(ctx, requestContextKey{}, requestContext)
}

// RequestContextFrom extracts the request context attached to ctx.
func RequestContextFrom(ctx context.Context) (*RequestContext, bool) {
	if ctx == nil {
		return nil, false
	}

	requestContext, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	if !ok || requestContext == nil {
		return nil, false
	}

	return requestContext, true
}
