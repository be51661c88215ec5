package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmynk/paysplit/internal/auth"
	"github.com/mmynk/paysplit/internal/chain"
	"github.com/mmynk/paysplit/internal/middleware"
	"github.com/mmynk/paysplit/internal/settlement"
	"github.com/mmynk/paysplit/internal/splits"
	"github.com/mmynk/paysplit/internal/storage/sqlite"
	"github.com/mmynk/paysplit/internal/validation"
	"github.com/mmynk/paysplit/pkg/api"
)

const (
	alice = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
	carol = "0x3333333333333333333333333333333333333333"
	dave  = "0x4444444444444444444444444444444444444444"
)

type testServer struct {
	auth   *api.AuthServiceClient
	splits *api.SplitServiceClient
	escrow *api.EscrowServiceClient
	store  *sqlite.SQLiteStore
}

// setupTestServer starts the three services over a temp-file SQLite database
// with a chain adapter that confirms every transfer.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	limits := validation.DefaultLimits()
	orch := settlement.New(store, chain.FuncAdapter{}, settlement.Config{
		FeeBasisPoints:       100,
		GasBufferBasisPoints: 200,
		Wait: chain.WaitPolicy{
			Confirmations:  1,
			Timeout:        time.Second,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
			MaxRetries:     1,
		},
		Limits: limits,
	}, settlement.WithLogger(logger))
	registry := splits.NewRegistry(store, limits, splits.WithWithholding(100, 200), splits.WithLogger(logger))

	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	authenticator := auth.NewPasswordAuthenticator(store, bcrypt.MinCost)

	mux := http.NewServeMux()
	mux.Handle(api.NewAuthServiceHandler(
		NewAuthService(authenticator, jwtManager, logger),
		connect.WithInterceptors(middleware.LoggingInterceptor()),
	))
	mux.Handle(api.NewSplitServiceHandler(
		NewSplitService(registry, logger),
		connect.WithInterceptors(middleware.OptionalAuth(jwtManager), middleware.LoggingInterceptor()),
	))
	mux.Handle(api.NewEscrowServiceHandler(
		NewEscrowService(orch, registry, logger),
		connect.WithInterceptors(middleware.RequireAuth(jwtManager), middleware.LoggingInterceptor()),
	))

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testServer{
		auth:   api.NewAuthServiceClient(server.Client(), server.URL),
		splits: api.NewSplitServiceClient(server.Client(), server.URL),
		escrow: api.NewEscrowServiceClient(server.Client(), server.URL),
		store:  store,
	}
}

// register creates an account for address and returns its session token.
func (s *testServer) register(t *testing.T, address string) string {
	t.Helper()
	resp, err := s.auth.Register(context.Background(), connect.NewRequest(&api.RegisterRequest{
		Address:     address,
		DisplayName: address[:6],
		Password:    "password123",
	}))
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", address, err)
	}
	return resp.Msg.Token
}

// as attaches token to a request.
func as[T any](token string, msg *T) *connect.Request[T] {
	req := connect.NewRequest(msg)
	if token != "" {
		req.Header().Set("Authorization", "Bearer "+token)
	}
	return req
}

func assertCode(t *testing.T, err error, want connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", want)
	}
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		t.Fatalf("expected connect error, got %T: %v", err, err)
	}
	if connectErr.Code() != want {
		t.Errorf("code = %v, want %v (%v)", connectErr.Code(), want, err)
	}
}

func amounts(transfers []*api.Transfer) []string {
	out := make([]string, len(transfers))
	for i, tr := range transfers {
		out[i] = tr.Amount
	}
	return out
}
