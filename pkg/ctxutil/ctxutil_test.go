package ctxutil

import (
	"context"
	"testing"
)

func TestOperator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ctx     context.Context
		claimed string
		wantOp  string
		wantOK  bool
		wantOr  string
	}{
		{"verified", WithOperator(context.Background(), "alice"), "mallory", "alice", true, "alice"},
		{"trimmed", WithOperator(context.Background(), " alice "), "", "alice", true, "alice"},
		{"missing", context.Background(), "bob", "", false, "bob"},
		{"empty", WithOperator(context.Background(), ""), "bob", "", false, "bob"},
		{"blank", WithOperator(context.Background(), "   "), "", "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			op, ok := OperatorFromCtx(tt.ctx)
			if op != tt.wantOp || ok != tt.wantOK {
				t.Errorf("OperatorFromCtx = (%q, %v), want (%q, %v)", op, ok, tt.wantOp, tt.wantOK)
			}
			if got := OperatorOr(tt.ctx, tt.claimed); got != tt.wantOr {
				t.Errorf("OperatorOr = %q, want %q", got, tt.wantOr)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	if got := RequestIDFromCtx(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
	ctx := WithOperator(WithRequestID(context.Background(), "req-123"), "alice")
	if got := RequestIDFromCtx(ctx); got != "req-123" {
		t.Fatalf("expected req-123, got %q", got)
	}
}
