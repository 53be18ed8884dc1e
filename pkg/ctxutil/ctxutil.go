// Package ctxutil carries request-scoped identity through context.Context:
// the operator named by a verified token and the request id.
package ctxutil

import (
	"context"
	"strings"
)

type (
	operatorKey  struct{}
	requestIDKey struct{}
)

// WithOperator records the operator a request acts for.
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, operatorKey{}, operator)
}

// OperatorFromCtx returns the operator and true, or "" and false when none
// (or only whitespace) was recorded.
func OperatorFromCtx(ctx context.Context) (string, bool) {
	op, _ := ctx.Value(operatorKey{}).(string)
	op = strings.TrimSpace(op)
	return op, op != ""
}

// OperatorOr returns the operator recorded in ctx, or claimed when there is
// none. A verified operator always wins over a name the caller supplied.
func OperatorOr(ctx context.Context, claimed string) string {
	if op, ok := OperatorFromCtx(ctx); ok {
		return op
	}
	return claimed
}

// WithRequestID records the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromCtx returns the request id, or "".
func RequestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
