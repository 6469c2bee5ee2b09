// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package duplex

import "github.com/google/uuid"

// newTraceID returns a UUIDv7 string identifying one Endpoint's lifetime,
// attached to every log line that Endpoint emits so a reader can follow a
// single connection's handshake, dispatch, and teardown through
// interleaved log output from many concurrent sessions.
//
// v7 over v4: its leading timestamp bits make trace ids produced around
// the same time sort near each other in log output, which v4's fully
// random layout does not offer.
func newTraceID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// The system CSPRNG failing is not something a caller can act on
		// differently than retrying with a weaker generator; v4 only needs
		// randomness, not clock access, so it is the more likely to succeed
		// fallback rather than a second attempt at the same call.
		return uuid.New().String()
	}
	return id.String()
}
