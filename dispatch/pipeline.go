package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/quayside/courier"
	"github.com/quayside/courier/internal/nilcheck"
	"github.com/quayside/courier/policy"
)

// Mode selects which handler factory a pipeline build uses.
type Mode string

const (
	ModeSync  Mode = "sync"
	ModeAsync Mode = "async"
)

// Pipeline is one handler wrapped in its declared policies. Pipelines
// are built once per (request type, mode) and cached; the same pipeline
// value serves every subsequent invocation until the cache is cleared.
type Pipeline struct {
	HandlerName string
	Kind        Kind

	requestType string
	mode        Mode
	handler     Handler
	policies    []policy.Policy
	tracer      trace.Tracer
}

// Invoke runs the request through the policy chain and into the handler.
// Policies execute outermost-declared-first; the tracing span sits
// innermost, immediately around the handler, so retried attempts each
// produce their own span.
func (pipeline *Pipeline) Invoke(ctx context.Context, request courier.Request) error {
	if pipeline == nil {
		return ErrConfiguration
	}

	if request == nil {
		return ErrRequestRequired
	}

	op := func(ctx context.Context) error {
		ctx, span := pipeline.tracer.Start(ctx, "dispatch.handle",
			trace.WithAttributes(
				attribute.String("courier.request_type", pipeline.requestType),
				attribute.String("courier.handler", pipeline.HandlerName),
				attribute.String("courier.mode", string(pipeline.mode)),
			),
		)
		defer span.End()

		err := pipeline.handler.Handle(ctx, request)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		return err
	}

	return policy.Compose(op, pipeline.policies...)(ctx)
}

type pipelineKey struct {
	requestType string
	mode        Mode
}

// PipelineBuilder resolves registrations into invocable pipelines and
// caches the result per (request type, mode).
type PipelineBuilder struct {
	subscribers *SubscriberRegistry
	policies    *policy.Registry
	tracer      trace.Tracer

	mu    sync.Mutex
	cache map[pipelineKey][]*Pipeline
}

// NewPipelineBuilder creates a builder over the given registries. A nil
// tracer defaults to noop.
func NewPipelineBuilder(
	subscribers *SubscriberRegistry,
	policies *policy.Registry,
	tracer trace.Tracer,
) (*PipelineBuilder, error) {
	if subscribers == nil {
		return nil, ErrRegistryRequired
	}

	if policies == nil {
		return nil, ErrPoliciesRequired
	}

	if nilcheck.Interface(tracer) {
		tracer = noop.NewTracerProvider().Tracer("courier.noop")
	}

	return &PipelineBuilder{
		subscribers: subscribers,
		policies:    policies,
		tracer:      tracer,
		cache:       make(map[pipelineKey][]*Pipeline),
	}, nil
}

// Build returns one pipeline per registration for the request type, in
// registration order. The first build for a key wins and is cached;
// concurrent callers observe the identical pipeline values.
func (builder *PipelineBuilder) Build(requestType string, mode Mode) ([]*Pipeline, error) {
	if builder == nil {
		return nil, ErrConfiguration
	}

	requestType = strings.TrimSpace(requestType)
	if requestType == "" {
		return nil, ErrRequestTypeRequired
	}

	key := pipelineKey{requestType: requestType, mode: mode}

	builder.mu.Lock()
	defer builder.mu.Unlock()

	if cached, ok := builder.cache[key]; ok {
		return cached, nil
	}

	registrations := builder.subscribers.Get(requestType)

	pipelines := make([]*Pipeline, 0, len(registrations))

	for _, registration := range registrations {
		pipeline, err := builder.buildOne(requestType, mode, registration)
		if err != nil {
			return nil, err
		}

		pipelines = append(pipelines, pipeline)
	}

	if builder.cache == nil {
		builder.cache = make(map[pipelineKey][]*Pipeline)
	}

	builder.cache[key] = pipelines

	return pipelines, nil
}

func (builder *PipelineBuilder) buildOne(requestType string, mode Mode, registration Registration) (*Pipeline, error) {
	factory := registration.New
	if mode == ModeAsync {
		factory = registration.NewAsync
	}

	if factory == nil {
		return nil, fmt.Errorf("%w %s: handler %q for %s", ErrNoFactory, mode, registration.Name, requestType)
	}

	handler, err := factory()
	if err != nil {
		return nil, fmt.Errorf("%w: handler factory %q for %s: %w", ErrConfiguration, registration.Name, requestType, err)
	}

	if nilcheck.Interface(handler) {
		return nil, fmt.Errorf("%w %s: handler factory %q for %s returned nil", ErrNoFactory, mode, registration.Name, requestType)
	}

	policies := make([]policy.Policy, 0, len(registration.Policies))

	for _, name := range registration.Policies {
		resolved, err := builder.policies.Get(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %q for handler %q on %s", ErrPolicyNotFound, name, registration.Name, requestType)
		}

		policies = append(policies, resolved)
	}

	return &Pipeline{
		HandlerName: registration.Name,
		Kind:        registration.Kind,
		requestType: requestType,
		mode:        mode,
		handler:     handler,
		policies:    policies,
		tracer:      builder.tracer,
	}, nil
}

// ClearCache drops every cached pipeline. Primarily for test isolation;
// in-flight invocations keep their pipeline value.
func (builder *PipelineBuilder) ClearCache() {
	if builder == nil {
		return
	}

	builder.mu.Lock()
	defer builder.mu.Unlock()

	builder.cache = make(map[pipelineKey][]*Pipeline)
}
