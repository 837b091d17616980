package common

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestAppErrorUnwrap(t *testing.T) {
	err := NewAppError("LOAD_ERROR", "insert failed", ErrDatabase)
	assert.Equal(t, "LOAD_ERROR: insert failed: database error", err.Error())
	assert.ErrorIs(t, err, ErrDatabase)
	assert.Equal(t, "X: y", NewAppError("X", "y", nil).Error())
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err      error
		code     codes.Code
		httpCode int
	}{
		{nil, codes.OK, http.StatusOK},
		{fmt.Errorf("purchase P9: %w", ErrNotFound), codes.NotFound, http.StatusNotFound},
		{WrapError(ErrInvalidInput, "min_amount"), codes.InvalidArgument, http.StatusBadRequest},
		{NewValidator().Check(false, "f", 1, "bad").Error(), codes.InvalidArgument, http.StatusBadRequest},
		{fmt.Errorf("landing: %w", ErrUnavailable), codes.Unavailable, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, codes.DeadlineExceeded, http.StatusGatewayTimeout},
		{fmt.Errorf("boom"), codes.Internal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, GRPCCode(tt.err), "%v", tt.err)
		assert.Equal(t, tt.httpCode, HTTPStatus(tt.err), "%v", tt.err)
	}
}

func TestToStatusKeepsExistingStatus(t *testing.T) {
	orig := status.Error(codes.AlreadyExists, "dup")
	assert.Equal(t, orig, ToStatus(orig))

	st, ok := status.FromError(ToStatus(ErrNotFound))
	assert.True(t, ok)
	assert.Equal(t, codes.NotFound, st.Code())
	assert.Nil(t, ToStatus(nil))
}
