package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "trustboard/pkg/domainerrors"
)

type createListingRequest struct {
	Name   string `json:"name" validate:"required,max=200"`
	Source string `json:"source" validate:"omitempty,oneof=official user registry"`
}

type submitRatingRequest struct {
	Trust      int    `json:"trust" validate:"required,min=1,max=5"`
	Usefulness int    `json:"usefulness" validate:"required,min=1,max=5"`
	Comment    string `json:"comment" validate:"max=2000"`
}

type castVoteRequest struct {
	// Pointer so an absent field fails validation instead of defaulting.
	Helpful *bool `json:"helpful" validate:"required"`
}

// firstValidationError converts a validator error into INVALID_INPUT naming
// the first failing field, per the API contract.
func firstValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		field := strings.ToLower(verrs[0].Field())
		return dErrors.Newf(dErrors.CodeInvalidInput, "invalid field %q (%s)", field, verrs[0].Tag())
	}
	return dErrors.New(dErrors.CodeInvalidInput, "invalid request body")
}
