package middleware

import (
	"context"
	"errors"
	"testing"

	"connectrpc.com/connect"

	"github.com/mmynk/paysplit/internal/auth"
)

type staticValidator map[string]*auth.Claims

func (v staticValidator) Validate(token string) (*auth.Claims, error) {
	if c, ok := v[token]; ok {
		return c, nil
	}
	return nil, auth.ErrInvalidToken
}

func callWith(t *testing.T, interceptor connect.UnaryInterceptorFunc, header string) (string, error) {
	t.Helper()
	var seen string
	next := connect.UnaryFunc(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		seen = GetAddress(ctx)
		return connect.NewResponse(&struct{}{}), nil
	})
	req := connect.NewRequest(&struct{}{})
	if header != "" {
		req.Header().Set("Authorization", header)
	}
	_, err := interceptor(next)(context.Background(), req)
	return seen, err
}

func TestRequireAuth(t *testing.T) {
	v := staticValidator{"good": {UserID: "u1", Address: "0xabc"}}
	interceptor := RequireAuth(v)

	tests := []struct {
		name     string
		header   string
		wantAddr string
		wantCode connect.Code
	}{
		{"valid token", "Bearer good", "0xabc", 0},
		{"missing header", "", "", connect.CodeUnauthenticated},
		{"wrong scheme", "Basic good", "", connect.CodeUnauthenticated},
		{"unknown token", "Bearer bad", "", connect.CodeUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := callWith(t, interceptor, tt.header)
			if tt.wantCode == 0 {
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				if addr != tt.wantAddr {
					t.Errorf("Expected address %q, got %q", tt.wantAddr, addr)
				}
				return
			}
			var connectErr *connect.Error
			if !errors.As(err, &connectErr) || connectErr.Code() != tt.wantCode {
				t.Errorf("Expected code %v, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	v := staticValidator{"good": {UserID: "u1", Address: "0xabc"}}
	interceptor := OptionalAuth(v)

	for header, want := range map[string]string{
		"Bearer good": "0xabc",
		"Bearer bad":  "",
		"":            "",
	} {
		addr, err := callWith(t, interceptor, header)
		if err != nil {
			t.Fatalf("Unexpected error for %q: %v", header, err)
		}
		if addr != want {
			t.Errorf("Header %q: expected address %q, got %q", header, want, addr)
		}
	}
}

func TestLoggingInterceptorPassesThrough(t *testing.T) {
	wantErr := connect.NewError(connect.CodeNotFound, errors.New("missing"))
	next := connect.UnaryFunc(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		return nil, wantErr
	})
	req := connect.NewRequest(&struct{}{})
	_, err := LoggingInterceptor()(next)(context.Background(), req)
	if !errors.Is(err, wantErr) {
		t.Errorf("Expected error to pass through, got %v", err)
	}
	if serverFault(connect.CodeNotFound) || !serverFault(connect.CodeInternal) {
		t.Error("Unexpected server fault classification")
	}
}
