package msgbus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(msg Message) TransmissionContext {
	return newTransmissionContext(context.Background(), msg, nil, emptyScope{}, "r1", nil)
}

// TestChain_OnionOrdering verifies first-registered middleware is outermost.
func TestChain_OnionOrdering(t *testing.T) {
	tr := &callTrace{}
	delegate := Chain(tr.terminal(), tr.middleware("M1"), tr.middleware("M2"))

	require.NoError(t, delegate(newTestContext(newOrder("1"))))
	assert.Equal(t, []string{"M1-in", "M2-in", "terminal", "M2-out", "M1-out"}, tr.Events())
}

func TestChain_NoMiddleware(t *testing.T) {
	tr := &callTrace{}
	require.NoError(t, Chain(tr.terminal())(newTestContext(newOrder("1"))))
	assert.Equal(t, []string{"terminal"}, tr.Events())
}

func TestChain_NilTerminalIsNoop(t *testing.T) {
	tr := &callTrace{}
	delegate := Chain(nil, tr.middleware("M1"))

	require.NoError(t, delegate(newTestContext(newOrder("1"))))
	assert.Equal(t, []string{"M1-in", "M1-out"}, tr.Events())
}

func TestChain_ShortCircuit(t *testing.T) {
	tr := &callTrace{}
	denied := errors.New("denied")
	gate := func(TransmissionDelegate) TransmissionDelegate {
		return func(TransmissionContext) error { return denied }
	}

	err := Chain(tr.terminal(), tr.middleware("M1"), gate, tr.middleware("M3"))(newTestContext(newOrder("1")))
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, []string{"M1-in", "M1-out"}, tr.Events())
}

func TestChain_ErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	tr := &callTrace{}
	delegate := Chain(func(TransmissionContext) error { return boom }, tr.middleware("M1"))

	assert.ErrorIs(t, delegate(newTestContext(newOrder("1"))), boom)
	assert.Equal(t, []string{"M1-in", "M1-out"}, tr.Events())
}

func TestHandleMessage(t *testing.T) {
	var got string
	handler := HandleMessage(func(_ TransmissionContext, m *BaseMessage[orderPayload]) error {
		got = m.Payload.OrderID
		return nil
	})

	require.NoError(t, handler(newTestContext(newOrder("42"))))
	assert.Equal(t, "42", got)

	err := handler(newTestContext(NewMessage(otherPayload{Value: 1})))
	assert.ErrorIs(t, err, ErrUnexpectedMessage)
}

func TestTransmissionContext(t *testing.T) {
	msg := newOrder("7")
	scope := NewContainer().NewScope()
	tc := newTransmissionContext(context.Background(), msg, "raw", scope, "orders", nil)

	assert.Same(t, msg, tc.Message())
	assert.Equal(t, "raw", tc.RawEvent())
	assert.Equal(t, scope, tc.Scope())
	assert.Equal(t, "orders", tc.ReceiverID())
	assert.NotNil(t, tc.Logger())

	typed, ok := MessageAs[*BaseMessage[orderPayload]](tc)
	require.True(t, ok)
	assert.Equal(t, "7", typed.Payload.OrderID)

	_, ok = MessageAs[*BaseMessage[otherPayload]](tc)
	assert.False(t, ok)
}

type ctxKey struct{}

func TestWithContext(t *testing.T) {
	tc := newTestContext(newOrder("1"))
	derived := WithContext(context.WithValue(tc, ctxKey{}, "v"), tc)

	assert.Equal(t, "v", derived.Value(ctxKey{}))
	assert.Nil(t, tc.Value(ctxKey{}))
	assert.Equal(t, tc.Message(), derived.Message())
	assert.Equal(t, tc.ReceiverID(), derived.ReceiverID())
}

func TestNewMessage(t *testing.T) {
	m := NewMessage(orderPayload{OrderID: "1"})
	assert.NotEmpty(t, m.MessageID())
	assert.False(t, m.Timestamp.IsZero())

	other := NewMessage(orderPayload{OrderID: "1"})
	assert.NotEqual(t, m.MessageID(), other.MessageID())

	fixed := NewMessage(orderPayload{}, WithMessageID("fixed"))
	assert.Equal(t, "fixed", fixed.MessageID())
}
