package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quayside/courier"
	"github.com/quayside/courier/internal/nilcheck"
	"github.com/quayside/courier/log"
)

var (
	ErrChannelRequired        = errors.New("rabbitmq channel is required")
	ErrMessageRequired        = errors.New("message is required")
	ErrConfirmModeUnavailable = errors.New("channel does not support confirm mode")
	ErrPublishNacked          = errors.New("message was nacked by broker")
	ErrConfirmTimeout         = errors.New("confirmation timed out")
	ErrProducerClosed         = errors.New("producer is closed")
)

const (
	// DefaultConfirmTimeout is the default timeout for waiting on broker
	// confirmation.
	DefaultConfirmTimeout = 5 * time.Second

	// confirmChannelBuffer should be >= max unconfirmed messages to avoid
	// blocking the broker's confirm delivery.
	confirmChannelBuffer = 256

	// contentType of every published body. Outbox payloads are stored as
	// serialized JSON.
	contentType = "application/json"
)

// ConfirmableChannel is the subset of the AMQP channel API the producer
// needs. *amqp.Channel satisfies it; tests substitute fakes.
type ConfirmableChannel interface {
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	PublishWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) error
	Close() error
}

// Producer publishes wire messages to RabbitMQ with publisher confirms
// enabled. Send returns only after the broker acks the delivery, so a
// nil error means the message is on the broker.
//
// Publishing is serialized per producer instance to preserve confirm
// ordering without delivery-tag correlation state; shard across
// instances for higher throughput.
type Producer struct {
	ch             ConfirmableChannel
	confirms       chan amqp.Confirmation
	closedCh       chan struct{}
	closeOnce      sync.Once
	logger         log.Logger
	exchange       string
	mandatory      bool
	confirmTimeout time.Duration

	mu        sync.RWMutex
	publishMu sync.Mutex
	closed    bool
}

var (
	_ courier.MessageProducer     = (*Producer)(nil)
	_ courier.BulkMessageProducer = (*Producer)(nil)
)

// ProducerOption configures a Producer.
type ProducerOption func(*Producer)

// WithLogger sets a structured logger for the producer.
func WithLogger(logger log.Logger) ProducerOption {
	return func(producer *Producer) {
		if nilcheck.Interface(logger) {
			return
		}

		producer.logger = logger
	}
}

// WithExchange routes messages through a named exchange instead of the
// default exchange. The message topic remains the routing key.
func WithExchange(exchange string) ProducerOption {
	return func(producer *Producer) {
		producer.exchange = exchange
	}
}

// WithMandatory asks the broker to return messages that cannot be routed
// to any queue instead of silently dropping them.
func WithMandatory(mandatory bool) ProducerOption {
	return func(producer *Producer) {
		producer.mandatory = mandatory
	}
}

// WithConfirmTimeout sets the timeout for waiting on broker confirmation.
func WithConfirmTimeout(timeout time.Duration) ProducerOption {
	return func(producer *Producer) {
		if timeout > 0 {
			producer.confirmTimeout = timeout
		}
	}
}

// NewProducer creates a confirm-mode producer from an open channel. The
// channel must be dedicated to this producer.
func NewProducer(ch ConfirmableChannel, opts ...ProducerOption) (*Producer, error) {
	if nilcheck.Interface(ch) {
		return nil, ErrChannelRequired
	}

	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfirmModeUnavailable, err)
	}

	confirms := make(chan amqp.Confirmation, confirmChannelBuffer)
	ch.NotifyPublish(confirms)

	closeNotify := ch.NotifyClose(make(chan *amqp.Error, 1))

	producer := &Producer{
		ch:             ch,
		confirms:       confirms,
		closedCh:       make(chan struct{}),
		logger:         log.NewNop(),
		confirmTimeout: DefaultConfirmTimeout,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(producer)
		}
	}

	producer.startCloseMonitor(closeNotify)

	return producer, nil
}

func (producer *Producer) startCloseMonitor(closeNotify chan *amqp.Error) {
	go func() {
		select {
		case amqpErr := <-closeNotify:
			if amqpErr != nil {
				producer.logger.Log(context.Background(), log.LevelWarn,
					"rabbitmq channel closed by broker",
					log.Err(amqpErr),
				)
			}

			producer.markClosed()
		case <-producer.closedCh:
		}
	}()
}

func (producer *Producer) markClosed() {
	producer.mu.Lock()
	producer.closed = true
	producer.mu.Unlock()

	producer.closeOnce.Do(func() { close(producer.closedCh) })
}

// Send publishes one message and waits for broker confirmation.
func (producer *Producer) Send(ctx context.Context, message *courier.Message) error {
	if producer == nil {
		return ErrProducerClosed
	}

	if message == nil {
		return ErrMessageRequired
	}

	if ctx == nil {
		ctx = context.Background()
	}

	producer.publishMu.Lock()
	defer producer.publishMu.Unlock()

	return producer.publishLocked(ctx, message)
}

// SendBatch publishes messages in order, stopping at the first failure.
// Messages before the failure are on the broker; the error reports which
// message failed so callers can keep the rest pending.
func (producer *Producer) SendBatch(ctx context.Context, messages []*courier.Message) error {
	if producer == nil {
		return ErrProducerClosed
	}

	if ctx == nil {
		ctx = context.Background()
	}

	producer.publishMu.Lock()
	defer producer.publishMu.Unlock()

	for i, message := range messages {
		if message == nil {
			return fmt.Errorf("batch message %d: %w", i, ErrMessageRequired)
		}

		if err := producer.publishLocked(ctx, message); err != nil {
			return fmt.Errorf("batch message %d (%s): %w", i, message.ID, err)
		}
	}

	return nil
}

// publishLocked performs one publish+confirm flow. Callers hold publishMu.
func (producer *Producer) publishLocked(ctx context.Context, message *courier.Message) error {
	producer.mu.RLock()

	if producer.closed {
		producer.mu.RUnlock()

		return ErrProducerClosed
	}

	ch := producer.ch
	confirms := producer.confirms
	closedCh := producer.closedCh
	confirmTimeout := producer.confirmTimeout
	exchange := producer.exchange
	mandatory := producer.mandatory
	producer.mu.RUnlock()

	publishing := toPublishing(message)

	if err := ch.PublishWithContext(ctx, exchange, message.Topic, mandatory, false, publishing); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	err := waitForConfirm(ctx, confirms, closedCh, confirmTimeout)
	if err != nil && isConfirmStreamCorrupted(err) {
		// The pending confirmation would be consumed by the next publish
		// and acknowledge a message the broker never confirmed. Tear the
		// channel down instead of desynchronizing the confirm stream.
		producer.invalidateChannel(ch)
	}

	return err
}

// isConfirmStreamCorrupted reports whether the error left a stale entry
// in the confirmation channel that would desynchronize the next
// waitForConfirm call.
func isConfirmStreamCorrupted(err error) bool {
	return errors.Is(err, ErrConfirmTimeout) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// invalidateChannel marks the producer closed and closes the underlying
// AMQP channel. Must be called while holding publishMu.
func (producer *Producer) invalidateChannel(ch ConfirmableChannel) {
	producer.mu.Lock()
	producer.closed = true
	producer.mu.Unlock()

	producer.closeOnce.Do(func() { close(producer.closedCh) })

	if !nilcheck.Interface(ch) {
		_ = ch.Close()
	}
}

// toPublishing maps the wire message onto AMQP properties so consumers
// can deduplicate on MessageId and correlate replies on CorrelationId.
func toPublishing(message *courier.Message) amqp.Publishing {
	createdAt := message.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return amqp.Publishing{
		MessageId:     message.ID.String(),
		CorrelationId: message.CorrelationID,
		Type:          string(message.Type),
		Timestamp:     createdAt,
		ContentType:   contentType,
		DeliveryMode:  amqp.Persistent,
		Body:          message.Body,
	}
}

func waitForConfirm(
	ctx context.Context,
	confirms <-chan amqp.Confirmation,
	closedCh <-chan struct{},
	confirmTimeout time.Duration,
) error {
	timeout := time.NewTimer(confirmTimeout)
	defer timeout.Stop()

	select {
	case confirmed, ok := <-confirms:
		if !ok {
			return ErrProducerClosed
		}

		if !confirmed.Ack {
			return fmt.Errorf("%w: delivery_tag=%d", ErrPublishNacked, confirmed.DeliveryTag)
		}

		return nil

	case <-closedCh:
		return ErrProducerClosed

	case <-timeout.C:
		return ErrConfirmTimeout

	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	}
}

// Close permanently closes the producer and its channel.
func (producer *Producer) Close() error {
	if producer == nil {
		return nil
	}

	producer.publishMu.Lock()
	defer producer.publishMu.Unlock()

	producer.mu.Lock()
	alreadyClosed := producer.closed
	producer.closed = true
	ch := producer.ch
	producer.mu.Unlock()

	producer.closeOnce.Do(func() { close(producer.closedCh) })

	if alreadyClosed || nilcheck.Interface(ch) {
		return nil
	}

	if err := ch.Close(); err != nil {
		return fmt.Errorf("closing producer channel: %w", err)
	}

	return nil
}
