// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package liveness provides revocable tokens for work that outlives
// the call that scheduled it.
//
// An owner that posts a continuation to a task queue captures a Token
// instead of a pointer to itself. When the owner is torn down it calls
// Revoke on its Factory; any continuation that runs afterwards sees
// Alive() == false and returns without touching the owner:
//
//	token := source.lifetime.Token()
//	runner.PostTask(func() {
//	    if !token.Alive() {
//	        return
//	    }
//	    source.doRead()
//	})
package liveness

import "sync/atomic"

// Factory issues tokens tied to one owner's lifetime. The zero value
// is ready to use.
type Factory struct {
	revoked atomic.Bool
}

// Token returns a token that stays alive until Revoke is called.
func (f *Factory) Token() Token {
	return Token{factory: f}
}

// Revoke invalidates every token issued by f, past and future.
// Calling Revoke more than once is harmless.
func (f *Factory) Revoke() {
	f.revoked.Store(true)
}

// Revoked reports whether Revoke has been called.
func (f *Factory) Revoked() bool {
	return f.revoked.Load()
}

// Token is a weak handle on an owner. The zero Token is never alive.
type Token struct {
	factory *Factory
}

// Alive reports whether the owner that issued the token still exists.
func (t Token) Alive() bool {
	return t.factory != nil && !t.factory.revoked.Load()
}
