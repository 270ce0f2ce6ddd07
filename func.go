// SPDX-License-Identifier: GPL-3.0-or-later

package erdos

import "context"

// Func is a generic operation that accepts an input and returns a result.
// Func instances compose via [Compose2] and [Compose3] into type-safe
// pipelines where the output of one operation flows into the next; the
// tcptransport subpackage builds its dial path (dial, handshake, TLS,
// observe) this way.
//
// Resource cleanup contract: when a Func receives a closeable resource as
// input and returns an error, it is responsible for closing that resource
// before returning, so a composed pipeline never leaks a partially-set-up
// connection on failure.
type Func[A, B any] interface {
	Call(ctx context.Context, input A) (B, error)
}

// FuncAdapter wraps a plain function as a [Func].
type FuncAdapter[A, B any] func(ctx context.Context, input A) (B, error)

// Call implements [Func].
func (f FuncAdapter[A, B]) Call(ctx context.Context, input A) (B, error) {
	return f(ctx, input)
}
