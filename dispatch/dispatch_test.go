//go:build unit

package dispatch

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/quayside/courier"
)

// testCommand is a point-to-point request fixture.
type testCommand struct {
	ID    uuid.UUID `json:"id"`
	Value string    `json:"value"`
}

func newTestCommand(value string) *testCommand {
	return &testCommand{ID: uuid.New(), Value: value}
}

func (command *testCommand) RequestID() uuid.UUID { return command.ID }
func (command *testCommand) RequestType() string  { return "test.command" }

// testEvent is a fan-out request fixture.
type testEvent struct {
	ID uuid.UUID `json:"id"`
}

func newTestEvent() *testEvent {
	return &testEvent{ID: uuid.New()}
}

func (event *testEvent) RequestID() uuid.UUID { return event.ID }
func (event *testEvent) RequestType() string  { return "test.event" }

// testQuery expects a correlated testReply.
type testQuery struct {
	ID       uuid.UUID `json:"id"`
	Question string    `json:"question"`
}

func newTestQuery(question string) *testQuery {
	return &testQuery{ID: uuid.New(), Question: question}
}

func (query *testQuery) RequestID() uuid.UUID { return query.ID }
func (query *testQuery) RequestType() string  { return "test.query" }
func (query *testQuery) ReplyType() string    { return "test.reply" }

type testReply struct {
	ID     uuid.UUID `json:"id"`
	Answer string    `json:"answer"`
}

func (reply *testReply) RequestID() uuid.UUID { return reply.ID }
func (reply *testReply) RequestType() string  { return "test.reply" }

// jsonMapper maps a request to a JSON-bodied message on a fixed topic.
type jsonMapper struct {
	topic       string
	messageType courier.MessageType
	decode      func([]byte) (courier.Request, error)
}

func (mapper *jsonMapper) MapToMessage(_ context.Context, request courier.Request) (*courier.Message, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	return courier.NewMessage(request.RequestID(), mapper.topic, mapper.messageType, body)
}

func (mapper *jsonMapper) MapToRequest(_ context.Context, message *courier.Message) (courier.Request, error) {
	return mapper.decode(message.Body)
}

func newCommandMapper() *jsonMapper {
	return &jsonMapper{
		topic:       "test.command",
		messageType: courier.MessageTypeCommand,
		decode: func(body []byte) (courier.Request, error) {
			var command testCommand
			if err := json.Unmarshal(body, &command); err != nil {
				return nil, err
			}

			return &command, nil
		},
	}
}

func newQueryMapper() *jsonMapper {
	return &jsonMapper{
		topic:       "test.query",
		messageType: courier.MessageTypeCommand,
		decode: func(body []byte) (courier.Request, error) {
			var query testQuery
			if err := json.Unmarshal(body, &query); err != nil {
				return nil, err
			}

			return &query, nil
		},
	}
}

func newReplyMapper() *jsonMapper {
	return &jsonMapper{
		topic:       "test.reply",
		messageType: courier.MessageTypeDocument,
		decode: func(body []byte) (courier.Request, error) {
			var reply testReply
			if err := json.Unmarshal(body, &reply); err != nil {
				return nil, err
			}

			return &reply, nil
		},
	}
}

// fakeProducer records sends and can be programmed to fail.
// failures > 0 fails that many sends with sendErr; failures < 0 fails
// every send.
type fakeProducer struct {
	mu       sync.Mutex
	sent     []*courier.Message
	sendErr  error
	failures int
	onSend   func(*courier.Message)
}

func (producer *fakeProducer) Send(_ context.Context, message *courier.Message) error {
	producer.mu.Lock()

	if producer.failures != 0 {
		if producer.failures > 0 {
			producer.failures--
		}

		err := producer.sendErr
		producer.mu.Unlock()

		return err
	}

	producer.sent = append(producer.sent, message)
	onSend := producer.onSend
	producer.mu.Unlock()

	if onSend != nil {
		onSend(message)
	}

	return nil
}

func (producer *fakeProducer) sentCount() int {
	producer.mu.Lock()
	defer producer.mu.Unlock()

	return len(producer.sent)
}

func (producer *fakeProducer) lastSent() *courier.Message {
	producer.mu.Lock()
	defer producer.mu.Unlock()

	if len(producer.sent) == 0 {
		return nil
	}

	return producer.sent[len(producer.sent)-1]
}

// countingHandler records invocations.
type countingHandler struct {
	mu    sync.Mutex
	calls []courier.Request
	err   error
}

func (handler *countingHandler) Handle(_ context.Context, request courier.Request) error {
	handler.mu.Lock()
	defer handler.mu.Unlock()

	handler.calls = append(handler.calls, request)

	return handler.err
}

func (handler *countingHandler) callCount() int {
	handler.mu.Lock()
	defer handler.mu.Unlock()

	return len(handler.calls)
}

func factoryFor(handler Handler) HandlerFactory {
	return func() (Handler, error) { return handler, nil }
}

func mustJSON(value any) []byte {
	body, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}

	return body
}
