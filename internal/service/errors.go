package service

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/paysplit/internal/auth"
	"github.com/mmynk/paysplit/internal/escrow"
	"github.com/mmynk/paysplit/internal/middleware"
	"github.com/mmynk/paysplit/internal/money"
	"github.com/mmynk/paysplit/internal/settlement"
	"github.com/mmynk/paysplit/internal/splits"
	"github.com/mmynk/paysplit/internal/storage"
	"github.com/mmynk/paysplit/internal/validation"
)

// errNotParty is returned when the caller may not act on an escrow.
var errNotParty = errors.New("caller may not perform this action on the escrow")

// toConnectError maps domain errors to Connect codes.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr
	}

	var (
		validationErr *validation.Error
		transitionErr *escrow.InvalidTransitionError
		conflictErr   *escrow.StateConflictError
		splitConflict *splits.StateConflictError
		arithmeticErr *money.ArithmeticError
	)
	switch {
	case errors.As(err, &validationErr):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.As(err, &transitionErr):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.As(err, &conflictErr), errors.As(err, &splitConflict), errors.Is(err, storage.ErrVersionConflict):
		return connect.NewError(connect.CodeAborted, err)
	case errors.Is(err, storage.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, settlement.ErrCancelRefused):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, splits.ErrNotOwner), errors.Is(err, errNotParty):
		return connect.NewError(connect.CodePermissionDenied, err)
	case errors.Is(err, auth.ErrAddressExists), errors.Is(err, storage.ErrAlreadyExists):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.Is(err, auth.ErrWeakPassword):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.As(err, &arithmeticErr):
		slog.Error("Amount arithmetic failed", "error", err)
		return connect.NewError(connect.CodeInternal, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// requireCaller returns the authenticated caller's address.
func requireCaller(ctx context.Context) (string, error) {
	address := middleware.GetAddress(ctx)
	if address == "" {
		return "", connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
	}
	return address, nil
}
