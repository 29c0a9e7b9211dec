package msgbus

import "fmt"

// TransmissionDelegate processes one message on a receiver.
type TransmissionDelegate func(tc TransmissionContext) error

// Middleware wraps a delegate. Call next to continue the chain; return
// without calling it to short-circuit.
type Middleware func(next TransmissionDelegate) TransmissionDelegate

// Chain composes middleware around terminal. The first middleware is the
// outermost: it runs first on the way in and last on the way out.
//
//	Chain(h, m1, m2) == m1(m2(h))
func Chain(terminal TransmissionDelegate, middleware ...Middleware) TransmissionDelegate {
	if terminal == nil {
		terminal = noopDelegate
	}
	result := terminal
	for i := len(middleware) - 1; i >= 0; i-- {
		result = middleware[i](result)
	}
	return result
}

func noopDelegate(TransmissionContext) error { return nil }

// HandleMessage builds a terminal delegate for messages of type M.
// Any other message type fails with ErrUnexpectedMessage.
func HandleMessage[M Message](fn func(tc TransmissionContext, msg M) error) TransmissionDelegate {
	return func(tc TransmissionContext) error {
		msg, ok := MessageAs[M](tc)
		if !ok {
			var want M
			return fmt.Errorf("%w: got %T, want %T", ErrUnexpectedMessage, tc.Message(), want)
		}
		return fn(tc, msg)
	}
}
