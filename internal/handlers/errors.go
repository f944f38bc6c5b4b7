package handlers

import (
	"errors"

	"github.com/pocketbase/pocketbase/apis"

	"typerace/internal/status"
)

// apiError maps service errors onto PocketBase API errors.
func apiError(err error) error {
	switch {
	case errors.Is(err, status.ErrRaceNotFound):
		return apis.NewNotFoundError("Race not found", nil)
	case errors.Is(err, status.ErrQuoteNotFound):
		return apis.NewNotFoundError("No quote available", nil)
	case errors.Is(err, status.ErrWrongPasscode):
		return apis.NewForbiddenError("Wrong passcode", nil)
	case errors.Is(err, status.ErrRaceUnavailable):
		return apis.NewBadRequestError("Race is not open for joining", nil)
	case errors.Is(err, status.ErrAlreadyJoined):
		return apis.NewBadRequestError("Already joined", nil)
	default:
		return apis.NewInternalServerError("Something went wrong", err)
	}
}
