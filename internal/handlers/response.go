package handlers

import (
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/core"
	"smarttrain/internal/auth"
	"smarttrain/internal/status"
)

// respondError writes the {code, message} body for err. Server side failures
// are logged here so handlers only need to return.
func respondError(e *core.RequestEvent, err error) error {
	httpStatus, body := status.ToResponse(err)
	if httpStatus >= http.StatusInternalServerError {
		slog.Error("Request failed",
			"error", err,
			"method", e.Request.Method,
			"path", e.Request.URL.Path,
		)
	}
	return e.JSON(httpStatus, body)
}

func bindJSON(e *core.RequestEvent, dst any) error {
	if err := e.BindBody(dst); err != nil {
		return status.Validation("Invalid request body")
	}
	return nil
}

func callerID(e *core.RequestEvent) (string, error) {
	return auth.UserID(e.Request.Context())
}
