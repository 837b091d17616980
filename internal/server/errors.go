package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/joseph-ayodele/datalake-etl/internal/common"
)

// ErrResponse is the JSON body of every failed HTTP request.
type ErrResponse struct {
	HTTPStatusCode int    `json:"-"`
	Error          string `json:"error"`
	Code           string `json:"code,omitempty"`
	RequestID      string `json:"request_id,omitempty"`
}

// Render implements the render.Renderer interface
func (e *ErrResponse) Render(_ http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func errResponse(r *http.Request, err error) *ErrResponse {
	resp := &ErrResponse{
		HTTPStatusCode: common.HTTPStatus(err),
		Error:          err.Error(),
		RequestID:      middleware.GetReqID(r.Context()),
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		resp.Code = appErr.Code
	}
	if resp.HTTPStatusCode >= http.StatusInternalServerError {
		resp.Error = http.StatusText(resp.HTTPStatusCode)
	}
	return resp
}
