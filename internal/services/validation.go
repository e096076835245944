package services

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"smarttrain/internal/status"
)

// invalid turns ozzo-validation field errors into a client-facing
// validation error. Rule execution failures pass through unchanged.
func invalid(err error) error {
	if err == nil {
		return nil
	}
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return err
	}
	return status.Validation(err.Error())
}
