//go:build unit

package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quayside/courier"
)

func TestSubscriberRegistry_DuplicatesPreserveOrder(t *testing.T) {
	registry := NewSubscriberRegistry()

	for _, name := range []string{"first", "second", "third"} {
		require.NoError(t, registry.Register("test.event", Registration{
			Name: name,
			Kind: KindEvent,
			New:  factoryFor(&countingHandler{}),
		}))
	}

	registrations := registry.Get("test.event")

	require.Len(t, registrations, 3)
	assert.Equal(t, "first", registrations[0].Name)
	assert.Equal(t, "second", registrations[1].Name)
	assert.Equal(t, "third", registrations[2].Name)
}

func TestSubscriberRegistry_RequiresFactory(t *testing.T) {
	registry := NewSubscriberRegistry()

	err := registry.Register("test.command", Registration{Name: "no-factory"})

	require.ErrorIs(t, err, ErrFactoryRequired)
}

func TestSubscriberRegistry_RequiresRequestType(t *testing.T) {
	registry := NewSubscriberRegistry()

	err := registry.Register("  ", Registration{
		Name: "blank-type",
		New:  factoryFor(&countingHandler{}),
	})

	require.ErrorIs(t, err, ErrRequestTypeRequired)
}

func TestSubscriberRegistry_GetReturnsCopy(t *testing.T) {
	registry := NewSubscriberRegistry()

	require.NoError(t, registry.Register("test.command", Registration{
		Name: "original",
		New:  factoryFor(&countingHandler{}),
	}))

	first := registry.Get("test.command")
	first[0].Name = "mutated"

	second := registry.Get("test.command")
	assert.Equal(t, "original", second[0].Name)
}

func TestSubscriberRegistry_UnknownTypeIsEmpty(t *testing.T) {
	registry := NewSubscriberRegistry()

	assert.Empty(t, registry.Get("never.registered"))
}

func TestMessageMapperRegistry_RegisterAndGet(t *testing.T) {
	registry := NewMessageMapperRegistry()
	mapper := newCommandMapper()

	require.NoError(t, registry.Register("test.command", mapper))

	resolved, err := registry.Get("test.command")
	require.NoError(t, err)
	assert.Same(t, MessageMapper(mapper), resolved)
}

func TestMessageMapperRegistry_DuplicateRejected(t *testing.T) {
	registry := NewMessageMapperRegistry()

	require.NoError(t, registry.Register("test.command", newCommandMapper()))

	err := registry.Register("test.command", newCommandMapper())
	require.ErrorIs(t, err, ErrMapperAlreadyRegistered)
}

func TestMessageMapperRegistry_MissingIsConfigurationError(t *testing.T) {
	registry := NewMessageMapperRegistry()

	_, err := registry.Get("never.registered")

	require.ErrorIs(t, err, ErrMapperNotFound)
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestMessageMapperRegistry_NilMapperRejected(t *testing.T) {
	registry := NewMessageMapperRegistry()

	require.ErrorIs(t, registry.Register("test.command", nil), ErrMapperRequired)
}

func TestHandlerFunc_Adapts(t *testing.T) {
	var seen courier.Request

	handler := HandlerFunc(func(_ context.Context, request courier.Request) error {
		seen = request

		return nil
	})

	command := newTestCommand("adapted")

	require.NoError(t, handler.Handle(context.Background(), command))
	assert.Same(t, courier.Request(command), seen)
}
