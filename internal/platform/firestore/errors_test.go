package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{codes.NotFound, true, false, false},
		{codes.AlreadyExists, false, true, false},
		{codes.Aborted, false, true, false},
		{codes.Unavailable, false, false, true},
		{codes.PermissionDenied, false, false, false},
	}

	for _, tc := range cases {
		err := WrapError("orders.get", status.Error(tc.code, "boom"))
		var repoErr *Error
		if !errors.As(err, &repoErr) {
			t.Fatalf("%s: expected *Error, got %T", tc.code, err)
		}
		if repoErr.IsNotFound() != tc.notFound || repoErr.IsConflict() != tc.conflict || repoErr.IsUnavailable() != tc.unavailable {
			t.Fatalf("%s: unexpected classification %+v", tc.code, repoErr)
		}
	}
}

func TestWrapErrorPassesContextErrors(t *testing.T) {
	if err := WrapError("carts.query", status.Error(codes.DeadlineExceeded, "slow")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if err := WrapError("carts.query", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}
