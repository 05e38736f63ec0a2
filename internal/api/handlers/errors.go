package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/acme/lead-contact-engine/pkg/errors"
)

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var verr *apperrors.ValidationError
	switch {
	case errors.As(err, &verr):
		// rendered with its issue list by ErrorHandler
		return err
	case errors.Is(err, apperrors.ErrValidation):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, apperrors.ErrConflict):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, apperrors.ErrTimeout):
		return fiber.NewError(http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, apperrors.ErrUnavailable):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}
