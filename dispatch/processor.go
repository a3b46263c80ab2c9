package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/quayside/courier"
	"github.com/quayside/courier/internal/nilcheck"
	"github.com/quayside/courier/log"
	"github.com/quayside/courier/outbox"
	"github.com/quayside/courier/policy"
)

// DefaultCallTimeout bounds Call when the caller passes a non-positive
// timeout.
const DefaultCallTimeout = 30 * time.Second

// Processor is the application-facing dispatcher. One instance serves
// the whole process; all operations are safe for concurrent use.
type Processor struct {
	subscribers *SubscriberRegistry
	mappers     *MessageMapperRegistry
	policies    *policy.Registry
	builder     *PipelineBuilder
	store       outbox.Store
	producer    courier.MessageProducer
	replies     *ReplyBroker
	logger      log.Logger
	tracer      trace.Tracer

	// postPolicies names the policies wrapped around outbound producer
	// sends on Post and Call, outermost first.
	postPolicies []string
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithLogger sets a structured logger.
func WithLogger(logger log.Logger) ProcessorOption {
	return func(processor *Processor) {
		if nilcheck.Interface(logger) {
			return
		}

		processor.logger = logger
	}
}

// WithTracer sets the tracer used for pipeline and outbound spans.
func WithTracer(tracer trace.Tracer) ProcessorOption {
	return func(processor *Processor) {
		if nilcheck.Interface(tracer) {
			return
		}

		processor.tracer = tracer
	}
}

// WithPostPolicies names the policies wrapped around producer sends on
// Post and Call, outermost first. Names resolve against the policy
// registry at post time.
func WithPostPolicies(names ...string) ProcessorOption {
	return func(processor *Processor) {
		processor.postPolicies = append([]string(nil), names...)
	}
}

// NewProcessor wires a processor over its registries, outbox store, and
// producer.
func NewProcessor(
	subscribers *SubscriberRegistry,
	mappers *MessageMapperRegistry,
	policies *policy.Registry,
	store outbox.Store,
	producer courier.MessageProducer,
	opts ...ProcessorOption,
) (*Processor, error) {
	if subscribers == nil {
		return nil, ErrRegistryRequired
	}

	if mappers == nil {
		return nil, ErrMappersRequired
	}

	if policies == nil {
		return nil, ErrPoliciesRequired
	}

	if nilcheck.Interface(store) {
		return nil, ErrStoreRequired
	}

	if nilcheck.Interface(producer) {
		return nil, ErrProducerRequired
	}

	processor := &Processor{
		subscribers: subscribers,
		mappers:     mappers,
		policies:    policies,
		store:       store,
		producer:    producer,
		replies:     NewReplyBroker(),
		logger:      log.NewNop(),
		tracer:      noop.NewTracerProvider().Tracer("courier.noop"),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(processor)
		}
	}

	builder, err := NewPipelineBuilder(subscribers, policies, processor.tracer)
	if err != nil {
		return nil, err
	}

	processor.builder = builder

	return processor, nil
}

// Send delivers a command to its single registered handler. Zero
// handlers or more than one is an error; the handler is invoked exactly
// once per call.
func (processor *Processor) Send(ctx context.Context, request courier.Request) error {
	return processor.send(ctx, request, ModeSync)
}

// SendAsync is Send over the async pipeline, built from the NewAsync
// factories.
func (processor *Processor) SendAsync(ctx context.Context, request courier.Request) error {
	return processor.send(ctx, request, ModeAsync)
}

func (processor *Processor) send(ctx context.Context, request courier.Request, mode Mode) error {
	if processor == nil {
		return ErrProcessorRequired
	}

	if nilcheck.Interface(request) {
		return ErrRequestRequired
	}

	ctx = processor.ensureRequestContext(ctx)

	pipelines, err := processor.builder.Build(request.RequestType(), mode)
	if err != nil {
		return err
	}

	switch len(pipelines) {
	case 0:
		return fmt.Errorf("%w: %s", ErrNoHandlerFound, request.RequestType())
	case 1:
		return pipelines[0].Invoke(ctx, request)
	default:
		return fmt.Errorf("%w: %s has %d", ErrMultipleHandlers, request.RequestType(), len(pipelines))
	}
}

// Publish delivers an event to every registered handler in registration
// order. A handler failure (or panic) is contained: remaining handlers
// still run, and all failures come back aggregated in one error.
func (processor *Processor) Publish(ctx context.Context, event courier.Request) error {
	return processor.publish(ctx, event, ModeSync)
}

// PublishAsync is Publish over the async pipeline.
func (processor *Processor) PublishAsync(ctx context.Context, event courier.Request) error {
	return processor.publish(ctx, event, ModeAsync)
}

func (processor *Processor) publish(ctx context.Context, event courier.Request, mode Mode) error {
	if processor == nil {
		return ErrProcessorRequired
	}

	if nilcheck.Interface(event) {
		return ErrRequestRequired
	}

	ctx = processor.ensureRequestContext(ctx)

	pipelines, err := processor.builder.Build(event.RequestType(), mode)
	if err != nil {
		return err
	}

	var faults []error

	for _, pipeline := range pipelines {
		if err := processor.invokeContained(ctx, pipeline, event); err != nil {
			processor.logger.Log(ctx, log.LevelWarn, "event handler failed",
				log.String("request_type", event.RequestType()),
				log.String("handler", pipeline.HandlerName),
				log.Err(err),
			)

			faults = append(faults, fmt.Errorf("handler %q: %w", pipeline.HandlerName, err))
		}
	}

	return errors.Join(faults...)
}

// invokeContained converts a handler panic into an error so one
// subscriber cannot take down the fan-out.
func (processor *Processor) invokeContained(ctx context.Context, pipeline *Pipeline, event courier.Request) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("handler %q panicked: %v", pipeline.HandlerName, recovered)
		}
	}()

	return pipeline.Invoke(ctx, event)
}

// Post maps the request to a wire message, records it Pending in the
// outbox, and attempts immediate dispatch through the configured post
// policies. On confirmed delivery the entry is marked Dispatched; on
// failure it stays Pending for the sweeper, and the error is returned.
func (processor *Processor) Post(ctx context.Context, request courier.Request) error {
	if processor == nil {
		return ErrProcessorRequired
	}

	if nilcheck.Interface(request) {
		return ErrRequestRequired
	}

	ctx = processor.ensureRequestContext(ctx)

	_, err := processor.post(ctx, request, "")

	return err
}

// post runs the store-then-forward flow. A non-empty correlationID
// overrides the one carried by the request context (the Call path).
func (processor *Processor) post(ctx context.Context, request courier.Request, correlationID string) (*courier.Message, error) {
	ctx, span := processor.tracer.Start(ctx, "dispatch.post")
	defer span.End()

	mapper, err := processor.mappers.Get(request.RequestType())
	if err != nil {
		return nil, err
	}

	message, err := mapper.MapToMessage(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("map request %s: %w", request.RequestType(), err)
	}

	if message == nil {
		return nil, fmt.Errorf("%w: mapper for %s returned nil message", ErrConfiguration, request.RequestType())
	}

	if correlationID != "" {
		message.CorrelationID = correlationID
	}

	if message.CorrelationID == "" {
		if requestContext, ok := courier.RequestContextFrom(ctx); ok {
			message.CorrelationID = requestContext.CorrelationID()
		}
	}

	entry, err := outbox.NewEntry(message)
	if err != nil {
		return nil, err
	}

	if err := processor.store.Add(ctx, entry); err != nil {
		return nil, fmt.Errorf("record outbox entry: %w", err)
	}

	send := func(ctx context.Context) error {
		return processor.producer.Send(ctx, message)
	}

	postPolicies, err := processor.resolvePostPolicies()
	if err != nil {
		return nil, err
	}

	if err := policy.Compose(send, postPolicies...)(ctx); err != nil {
		processor.logger.Log(ctx, log.LevelWarn, "immediate dispatch failed; entry stays pending for the sweeper",
			log.String("message_id", message.ID.String()),
			log.String("topic", message.Topic),
			log.Err(err),
		)

		if attemptErr := processor.store.MarkAttempt(ctx, message.ID, err.Error()); attemptErr != nil {
			processor.logger.Log(ctx, log.LevelError, "failed to record dispatch attempt", log.Err(attemptErr))
		}

		return nil, err
	}

	if err := processor.store.MarkDispatched(ctx, message.ID, time.Now().UTC()); err != nil {
		// The message is on the broker; a duplicate redelivery by the
		// sweeper is the accepted at-least-once outcome.
		processor.logger.Log(ctx, log.LevelError,
			"message delivered but failed to persist DISPATCHED state; the sweeper may redeliver it",
			log.String("message_id", message.ID.String()),
			log.Err(err),
		)
	}

	return message, nil
}

func (processor *Processor) resolvePostPolicies() ([]policy.Policy, error) {
	if len(processor.postPolicies) == 0 {
		return nil, nil
	}

	resolved := make([]policy.Policy, 0, len(processor.postPolicies))

	for _, name := range processor.postPolicies {
		p, err := processor.policies.Get(name)
		if err != nil {
			return nil, fmt.Errorf("%w: post policy %q", ErrPolicyNotFound, name)
		}

		resolved = append(resolved, p)
	}

	return resolved, nil
}

// Call posts a request expecting a correlated reply and blocks until the
// reply arrives or the timeout elapses. A timeout is an absent reply,
// (nil, nil), not an error. The reply subscription is torn down on every
// path.
func (processor *Processor) Call(ctx context.Context, request courier.Request, timeout time.Duration) (courier.Request, error) {
	if processor == nil {
		return nil, ErrProcessorRequired
	}

	if nilcheck.Interface(request) {
		return nil, ErrRequestRequired
	}

	caller, ok := request.(courier.Caller)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotACaller, request.RequestType())
	}

	replyMapper, err := processor.mappers.Get(caller.ReplyType())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrReplyMapperMissing, caller.ReplyType())
	}

	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	requestContext := courier.NewRequestContext()
	ctx = courier.ContextWithRequestContext(ctx, requestContext)

	correlationID := requestContext.CorrelationID()

	replies, err := processor.replies.Subscribe(correlationID)
	if err != nil {
		return nil, err
	}
	defer processor.replies.Unsubscribe(correlationID)

	if _, err := processor.post(ctx, request, correlationID); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-replies:
		typed, err := replyMapper.MapToRequest(ctx, reply)
		if err != nil {
			return nil, fmt.Errorf("map reply %s: %w", caller.ReplyType(), err)
		}

		return typed, nil

	case <-timer.C:
		processor.logger.Log(ctx, log.LevelDebug, "call timed out waiting for reply",
			log.String("request_type", request.RequestType()),
			log.String("correlation_id", correlationID),
		)

		return nil, nil

	case <-ctx.Done():
		return nil, fmt.Errorf("call %s: %w", request.RequestType(), ctx.Err())
	}
}

// DeliverReply hands an inbound transport message to the Call waiting on
// its correlation ID. It reports whether a caller was found; unmatched
// replies are dropped.
func (processor *Processor) DeliverReply(message *courier.Message) bool {
	if processor == nil {
		return false
	}

	return processor.replies.Deliver(message)
}

// ReplyBroker exposes the broker for transport consumers and tests.
func (processor *Processor) ReplyBroker() *ReplyBroker {
	if processor == nil {
		return nil
	}

	return processor.replies
}

// ClearPipelineCache drops cached pipelines. Primarily for test
// isolation between registration changes.
func (processor *Processor) ClearPipelineCache() {
	if processor == nil {
		return
	}

	processor.builder.ClearCache()
}

// ensureRequestContext attaches a fresh request context when the caller
// did not provide one.
func (processor *Processor) ensureRequestContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, ok := courier.RequestContextFrom(ctx); ok {
		return ctx
	}

	return courier.ContextWithRequestContext(ctx, courier.NewRequestContext())
}
