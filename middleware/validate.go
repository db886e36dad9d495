// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package middleware

import (
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/danielhkuo/gastroswipe/models"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks struct tags and returns a field -> code map, or nil if valid
func Validate(v any) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"body": "INVALID"}
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldName(fe)] = fieldCode(fe)
	}
	return fields
}

func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldCode(fe validator.FieldError) string {
	sized := false
	switch fe.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		sized = true
	}

	switch fe.Tag() {
	case "required":
		return "REQUIRED"
	case "min":
		if sized {
			return "TOO_SHORT"
		}
		return "TOO_SMALL"
	case "max":
		if sized {
			return "TOO_LONG"
		}
		return "TOO_LARGE"
	case "email":
		return "INVALID_EMAIL"
	case "oneof":
		return "INVALID_CHOICE"
	case "gt", "gte", "lt", "lte":
		return "OUT_OF_RANGE"
	default:
		return "INVALID"
	}
}

// ValidationError writes a 422 with per-field codes
func ValidationError(w http.ResponseWriter, fields map[string]string) {
	JSONResponse(w, http.StatusUnprocessableEntity, models.ErrorResponse{
		Error:   http.StatusText(http.StatusUnprocessableEntity),
		Code:    models.CodeValidation,
		Message: "Request validation failed",
		Fields:  fields,
	})
}

// DecodeAndValidate parses the JSON body into v and validates it.
// On failure it writes the response and returns false.
func DecodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := ParseJSONBody(r, v); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return false
	}
	if fields := Validate(v); fields != nil {
		ValidationError(w, fields)
		return false
	}
	return true
}

// ParseOptionalJSONBody is ParseJSONBody for routes where the body may be omitted
func ParseOptionalJSONBody(r *http.Request, v any) error {
	err := ParseJSONBody(r, v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
