// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

// SLogger abstracts the *slog.Logger behavior duplex needs, so a caller
// can unit-test against a fake and so the transport never assumes a
// particular logging backend.
//
// Info covers session binds; Warn covers recoverable anomalies (a
// malformed or unexpected frame, a failed CALL_PROC, a failed handshake,
// a Dialer's lost connection); Error covers an Endpoint's transport loss.
// duplex itself emits no Debug lines.
//
// *slog.Logger satisfies this interface directly.
type SLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DefaultSLogger returns a no-op logger. duplex never writes to
// stdout/stderr unless a caller supplies a real *slog.Logger via Config.
func DefaultSLogger() SLogger { return discardSLogger{} }

type discardSLogger struct{}

var _ SLogger = discardSLogger{}

func (discardSLogger) Debug(msg string, args ...any) {}
func (discardSLogger) Info(msg string, args ...any)  {}
func (discardSLogger) Warn(msg string, args ...any)  {}
func (discardSLogger) Error(msg string, args ...any) {}
