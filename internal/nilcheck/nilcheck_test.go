//go:build unit

package nilcheck

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type payload struct{}

type sender interface {
	Send()
}

type senderImpl struct{}

func (*senderImpl) Send() {}

func TestInterface(t *testing.T) {
	t.Parallel()

	var nilPointer *payload
	var nilSlice []byte
	var nilMap map[string]string
	var nilFunc func()
	var nilSender sender

	var typedNilSender sender
	var typedNil *senderImpl
	typedNilSender = typedNil

	require.True(t, Interface(nil))
	require.True(t, Interface(nilPointer))
	require.True(t, Interface(nilSlice))
	require.True(t, Interface(nilMap))
	require.True(t, Interface(nilFunc))
	require.True(t, Interface(nilSender))
	require.True(t, Interface(typedNilSender))

	require.False(t, Interface(0))
	require.False(t, Interface("topic"))
	require.False(t, Interface(payload{}))
	require.False(t, Interface(&payload{}))
	require.False(t, Interface([]byte{}))
}
