// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import "errors"

var (
	// ErrClosed is returned by Endpoint operations attempted after the
	// Endpoint has closed for good, and fails the pending calls of an
	// Endpoint that is closed.
	ErrClosed = errors.New("duplex: endpoint closed")

	// ErrHandshakeFailed reports a magic-number or protocol-version
	// mismatch during the initial handshake exchange.
	ErrHandshakeFailed = errors.New("duplex: handshake failed")

	// ErrUnknownObject reports a CALL_PROC/CALL_FUNC naming an object id
	// not present (or no longer present) in the ObjectTable.
	ErrUnknownObject = errors.New("duplex: unknown object id")

	// ErrUnknownMethod reports a call naming a method the LocalObject does
	// not implement.
	ErrUnknownMethod = errors.New("duplex: unknown method")

	// ErrFrameTooLarge reports an incoming frame exceeding
	// EndpointConfig.MaxFrameSize.
	ErrFrameTooLarge = errors.New("duplex: frame exceeds configured maximum size")

	// ErrSessionNotResumable is returned by Dialer.Run when its Session is
	// already Dead by the time its connection ends. A session id the peer
	// no longer recognizes is not reported with it: the peer assigns a
	// fresh session and the Dialer carries on with that one.
	ErrSessionNotResumable = errors.New("duplex: session can no longer be resumed")

	// ErrSessionDead reports an operation attempted against a Session that
	// has transitioned to the Dead state.
	ErrSessionDead = errors.New("duplex: session is dead")

	// ErrRemoteException reports that a call returned a variant.Exception
	// rather than a normal result. Callers that want the exception text
	// should use variant.Value.ExceptionText on the returned value instead
	// of unwrapping this error, which carries no payload of its own beyond
	// the sentinel identity.
	ErrRemoteException = errors.New("duplex: remote call returned an exception")
)

// ErrClassifier maps an error observed on a connection (typically a
// transport-loss error surfaced from net.Conn) to a short label suitable
// for a structured log field, without the transport itself depending on
// any specific metrics or alerting system.
type ErrClassifier interface {
	Classify(err error) string
}

// ErrClassifierFunc adapts a plain function to ErrClassifier.
type ErrClassifierFunc func(error) string

// Classify implements ErrClassifier.
func (f ErrClassifierFunc) Classify(err error) string { return f(err) }

// DefaultErrClassifier returns an empty label for every error. Supply a
// custom ErrClassifier via Config when connection-loss causes need to be
// distinguished in logs.
var DefaultErrClassifier = ErrClassifierFunc(func(error) string { return "" })
