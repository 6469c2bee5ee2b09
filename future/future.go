// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package future implements a generic single-shot deferred result with
// ordered, chainable success/error handler pairs — the mechanism duplex
// uses to represent an RPC call's eventual return value and to let a
// LocalObject method hand back a streamed result before it has finished
// computing it.
//
// A Future fires at most once, with either a success value or an error.
// Handler pairs registered with AddSuccess, AddError, or AddBoth are
// dispatched in registration order. A handler may return a nested Future
// instead of a final value; dispatch then suspends until the nested
// Future fires, and resumes the outer chain with its outcome. Adding a
// handler pair after the Future has already fired dispatches it
// immediately instead of queuing it indefinitely.
package future

import "sync"

// Value is the minimal contract a chained type must satisfy: knowing
// whether it represents an exception. variant.Value implements this
// directly, but future never imports variant — keeping both as leaf
// packages duplex can depend on without creating a cycle.
type Value interface {
	IsException() bool
}

// SuccessFunc is a handler invoked when a Future settles successfully (or
// when an earlier ErrorFunc in the chain recovers from an error). It may
// return a final value, a nested Future to splice in, or an error.
type SuccessFunc[V Value] func(v V) (V, *Future[V], error)

// ErrorFunc is a handler invoked when a Future settles with an error (or
// when an earlier SuccessFunc in the chain fails). It may recover by
// returning a final value, defer further by returning a nested Future, or
// propagate by returning an error.
type ErrorFunc[V Value] func(err error) (V, *Future[V], error)

type pair[V Value] struct {
	success SuccessFunc[V]
	failure ErrorFunc[V]
}

// state is the Future's settlement: not yet fired, fired with a value, or
// fired with an error. A chain in flight may move between isErr=false and
// isErr=true repeatedly as handlers recover or fail.
type state[V Value] struct {
	fired bool
	isErr bool
	value V
	err   error
}

// Future is a single-shot deferred result. The zero value is not usable;
// construct one with New.
type Future[V Value] struct {
	mu         sync.Mutex
	st         state[V]
	cbs        []pair[V]
	next       int  // index of the next unrun callback pair
	paused     bool // true while waiting on a spliced nested Future
	errToValue func(error) V
}

// New returns an unfired Future. errToValue converts a Go error into the
// chain's value type so that a final (unhandled) error can still be
// observed through Result/Wait without a second error-shaped accessor.
func New[V Value](errToValue func(error) V) *Future[V] {
	return &Future[V]{errToValue: errToValue}
}

// FireSuccess settles f with a success value. Panics if f has already
// fired: firing twice is a programming error, not a runtime condition a
// caller should need to handle.
func (f *Future[V]) FireSuccess(v V) {
	f.fire(state[V]{fired: true, isErr: false, value: v})
}

// FireError settles f with an error.
func (f *Future[V]) FireError(err error) {
	f.fire(state[V]{fired: true, isErr: true, err: err})
}

func (f *Future[V]) fire(st state[V]) {
	f.mu.Lock()
	if f.st.fired {
		f.mu.Unlock()
		panic("future: Future fired more than once")
	}
	f.st = st
	f.mu.Unlock()
	f.dispatch()
}

// AddSuccess registers a success handler and returns f for chaining.
func (f *Future[V]) AddSuccess(fn SuccessFunc[V]) *Future[V] {
	return f.AddBoth(fn, nil)
}

// AddError registers an error handler and returns f for chaining.
func (f *Future[V]) AddError(fn ErrorFunc[V]) *Future[V] {
	return f.AddBoth(nil, fn)
}

// AddBoth registers an ordered (success, error) handler pair. Either may
// be nil, in which case the current outcome passes through unchanged to
// the next pair in the chain. If f has already fired and is not currently
// suspended on a spliced nested Future, the new pair (and any pairs still
// queued behind it) is dispatched before AddBoth returns.
func (f *Future[V]) AddBoth(success SuccessFunc[V], failure ErrorFunc[V]) *Future[V] {
	f.mu.Lock()
	f.cbs = append(f.cbs, pair[V]{success: success, failure: failure})
	fired := f.st.fired
	paused := f.paused
	f.mu.Unlock()
	if fired && !paused {
		f.dispatch()
	}
	return f
}

// dispatch runs queued callback pairs from f.next forward until the queue
// is exhausted or a handler splices in a nested Future, in which case
// dispatch pauses and arranges to resume when that Future fires.
func (f *Future[V]) dispatch() {
	for {
		f.mu.Lock()
		if !f.st.fired || f.paused {
			f.mu.Unlock()
			return
		}
		if f.next >= len(f.cbs) {
			f.mu.Unlock()
			return
		}
		p := f.cbs[f.next]
		f.next++
		cur := f.st
		f.mu.Unlock()

		var (
			nv     V
			nested *Future[V]
			err    error
			ran    bool
		)
		switch {
		case cur.isErr && p.failure != nil:
			nv, nested, err = p.failure(cur.err)
			ran = true
		case !cur.isErr && p.success != nil:
			nv, nested, err = p.success(cur.value)
			ran = true
		}

		if !ran {
			// Pass the current outcome through untouched.
			continue
		}

		if nested != nil {
			f.mu.Lock()
			f.paused = true
			f.mu.Unlock()
			nested.AddBoth(
				func(v V) (V, *Future[V], error) {
					f.resume(state[V]{fired: true, isErr: false, value: v})
					var zero V
					return zero, nil, nil
				},
				func(nestedErr error) (V, *Future[V], error) {
					f.resume(state[V]{fired: true, isErr: true, err: nestedErr})
					var zero V
					return zero, nil, nil
				},
			)
			return
		}

		if err != nil {
			f.mu.Lock()
			f.st = state[V]{fired: true, isErr: true, err: err}
			f.mu.Unlock()
			continue
		}

		f.mu.Lock()
		f.st = state[V]{fired: true, isErr: false, value: nv}
		f.mu.Unlock()
	}
}

// resume is called from a spliced nested Future's own handler pair once it
// fires, continuing the outer chain with the nested outcome.
func (f *Future[V]) resume(st state[V]) {
	f.mu.Lock()
	f.st = st
	f.paused = false
	f.mu.Unlock()
	f.dispatch()
}

// Fired reports whether f has settled, success or error.
func (f *Future[V]) Fired() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st.fired
}

// Pending reports whether f has fired but its handler chain is currently
// suspended on a spliced nested Future rather than fully settled. A caller
// deciding whether it must wait for f to "really" finish — as opposed to
// the outcome it fired with possibly being superseded by a chained handler
// — checks this instead of Fired.
func (f *Future[V]) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st.fired && f.paused
}

// Result blocks-free inspection of the current outcome: ok is false until
// f has fired. This does not wait for pending handler dispatch or a
// spliced nested Future to resolve; it reports whatever f's own state
// currently is.
func (f *Future[V]) Result() (v V, isErr bool, err error, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.st.fired {
		return v, false, nil, false
	}
	return f.st.value, f.st.isErr, f.st.err, true
}

// Wait blocks until f has fully settled — including waiting out any
// spliced nested Future chain — and returns the final value, converting
// an unrecovered error via the errToValue function passed to New.
func (f *Future[V]) Wait() V {
	done := make(chan struct{})
	var result V
	f.AddBoth(
		func(v V) (V, *Future[V], error) {
			result = v
			close(done)
			return v, nil, nil
		},
		func(err error) (V, *Future[V], error) {
			result = f.errToValue(err)
			close(done)
			return result, nil, nil
		},
	)
	<-done
	return result
}
