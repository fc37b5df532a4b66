package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

// Validate is the shared struct validator instance.
var Validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeJSON decodes the request body into dst and validates it.
func DecodeJSON(r *http.Request, dst any) *AppError {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &AppError{Code: "BAD_REQUEST", Message: "invalid json payload", HTTPStatus: http.StatusBadRequest, Err: err}
	}
	return ValidateStruct(dst)
}

// ValidateStruct runs struct tag validation and converts failures into a
// VALIDATION_ERROR with per-field details.
func ValidateStruct(v any) *AppError {
	if err := Validate.Struct(v); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			details := make(map[string]any, len(fieldErrs))
			for _, fe := range fieldErrs {
				details[lowerFirst(fe.Field())] = fe.Tag()
			}
			return &AppError{
				Code:       "VALIDATION_ERROR",
				Message:    "payload failed validation",
				HTTPStatus: http.StatusUnprocessableEntity,
				Err:        err,
				Details:    details,
			}
		}
		return &AppError{Code: "VALIDATION_ERROR", Message: err.Error(), HTTPStatus: http.StatusUnprocessableEntity, Err: err}
	}
	return nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
