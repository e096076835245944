package auth

import (
	"github.com/pocketbase/pocketbase/core"
	"smarttrain/internal/status"
)

// RequireAuth rejects requests without a valid bearer token and makes the
// caller available to handlers through UserID(e.Request.Context()).
func (a *Authenticator) RequireAuth() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		claims, err := a.Authenticate(e.Request)
		if err != nil {
			httpStatus, body := status.ToResponse(err)
			return e.JSON(httpStatus, body)
		}

		e.Request = e.Request.WithContext(WithUser(e.Request.Context(), claims))
		return e.Next()
	}
}
