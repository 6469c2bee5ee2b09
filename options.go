// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

const (
	// defaultMaxFrameSize bounds a single RPC frame's payload. A call or
	// return carrying a Variant tree larger than this is a configuration
	// error, not a wire-level surprise: callers needing larger payloads
	// raise EndpointConfig.MaxFrameSize explicitly.
	defaultMaxFrameSize = 1 << 20 // 1 MiB

	// defaultSuspendTimeout is how long a Session may sit Suspended, with
	// no underlying net.Conn, before the SessionManager tears it down and
	// frees every object it owned.
	defaultSuspendTimeout = 30 * time.Second

	// defaultReconnectBackoff is the Dialer's wait between one failed
	// reconnect attempt and the next.
	defaultReconnectBackoff = 5 * time.Second

	// defaultPingInterval is how long an Endpoint waits without sending
	// any frame before it sends an idle-detection PING. Zero disables it.
	defaultPingInterval = 0 * time.Second
)

// randUint64 draws a session id or request id from the system CSPRNG. Config
// structs expose this as an overridable field (RandUint64) so tests can
// make id allocation deterministic.
func randUint64() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand.Read failing means the OS entropy source is broken;
		// there is no degraded mode worth falling back to silently, but a
		// session/request id still has to come from somewhere, so fall back
		// to a fixed, clearly-non-random value rather than panicking a
		// long-lived connection.
		return 0
	}
	return binary.LittleEndian.Uint64(b[:])
}

// EndpointConfig configures a single Endpoint — the connection core that
// frames, dispatches, and pauses/resumes one net.Conn.
type EndpointConfig struct {
	// MaxFrameSize caps the length field of any frame this Endpoint will
	// read. Exceeding it on read is ErrFrameTooLarge and closes the
	// connection. Frames this Endpoint writes are not checked against it.
	MaxFrameSize int

	// PingInterval, if non-zero, makes the Endpoint send a PING after this
	// long without sending any other frame. The peer answers with a PONG,
	// which is accepted and otherwise ignored. Zero disables idle
	// keepalive entirely.
	PingInterval time.Duration

	// Logger receives lifecycle, dispatch, and error log lines.
	Logger SLogger

	// ErrClassifier labels transport-loss errors for Logger's structured
	// fields.
	ErrClassifier ErrClassifier

	// TimeNow returns the current time. Overridable so ping-interval
	// logic can be driven deterministically in tests.
	TimeNow func() time.Time

	// RandUint64 supplies the Endpoint's first request id; later ids
	// count up from it. Overridable for deterministic tests.
	RandUint64 func() uint64
}

// NewEndpointConfig returns an EndpointConfig with sane defaults.
func NewEndpointConfig() *EndpointConfig {
	return &EndpointConfig{
		MaxFrameSize:  defaultMaxFrameSize,
		PingInterval:  defaultPingInterval,
		Logger:        DefaultSLogger(),
		ErrClassifier: DefaultErrClassifier,
		TimeNow:       time.Now,
		RandUint64:    randUint64,
	}
}

// SessionManagerConfig configures an Acceptor's accept loop and the
// sessions it creates.
type SessionManagerConfig struct {
	// SuspendTimeout is how long a Session may remain Suspended (peer
	// disconnected, not yet reconnected) before it is declared Dead.
	SuspendTimeout time.Duration

	Endpoint *EndpointConfig

	Logger SLogger

	TimeNow    func() time.Time
	RandUint64 func() uint64
}

// NewSessionManagerConfig returns a SessionManagerConfig with sane
// defaults.
func NewSessionManagerConfig() *SessionManagerConfig {
	return &SessionManagerConfig{
		SuspendTimeout: defaultSuspendTimeout,
		Endpoint:       NewEndpointConfig(),
		Logger:         DefaultSLogger(),
		TimeNow:        time.Now,
		RandUint64:     randUint64,
	}
}

// DialerConfig configures a Dialer's connect and reconnect behavior.
type DialerConfig struct {
	// ReconnectBackoff is the wait between one failed reconnect attempt
	// and the next.
	ReconnectBackoff time.Duration

	// MaxReconnectAttempts caps how many consecutive reconnect attempts a
	// Dialer makes before giving up and declaring the session Dead. Zero
	// means unlimited.
	MaxReconnectAttempts int

	// SuspendTimeout is how long the Session may sit Suspended between a
	// lost connection and a successful reconnect before it is declared
	// Dead on its own, independent of MaxReconnectAttempts.
	SuspendTimeout time.Duration

	Endpoint *EndpointConfig

	Logger SLogger

	TimeNow    func() time.Time
	RandUint64 func() uint64
}

// NewDialerConfig returns a DialerConfig with sane defaults.
func NewDialerConfig() *DialerConfig {
	return &DialerConfig{
		ReconnectBackoff:     defaultReconnectBackoff,
		MaxReconnectAttempts: 0,
		SuspendTimeout:       defaultSuspendTimeout,
		Endpoint:             NewEndpointConfig(),
		Logger:               DefaultSLogger(),
		TimeNow:              time.Now,
		RandUint64:           randUint64,
	}
}
