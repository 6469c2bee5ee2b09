// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package future

import "sync"

// Join returns a Future that fires once every Future in futures has
// settled successfully, combining their values with combine. The first
// error observed from any input Future fires the joined Future with that
// error immediately; later settlements (success or error) from the
// remaining inputs are then ignored.
//
// Join panics if futures is empty, since a combine over zero results
// (success with no inputs) has no sensible value to return; callers
// should special-case the empty set themselves.
func Join[V Value](futures []*Future[V], combine func([]V) V) *Future[V] {
	if len(futures) == 0 {
		panic("future: Join requires at least one Future")
	}

	out := New[V](func(err error) V {
		var zero V
		return zero
	})

	var (
		mu        sync.Mutex
		results   = make([]V, len(futures))
		remaining = len(futures)
		settled   bool
	)

	for idx, in := range futures {
		idx := idx
		in.AddBoth(
			func(v V) (V, *Future[V], error) {
				mu.Lock()
				results[idx] = v
				remaining--
				fire := remaining == 0 && !settled
				if fire {
					settled = true
				}
				mu.Unlock()
				if fire {
					out.FireSuccess(combine(results))
				}
				var zero V
				return zero, nil, nil
			},
			func(err error) (V, *Future[V], error) {
				mu.Lock()
				fire := !settled
				if fire {
					settled = true
				}
				mu.Unlock()
				if fire {
					out.FireError(err)
				}
				var zero V
				return zero, nil, nil
			},
		)
	}

	return out
}
