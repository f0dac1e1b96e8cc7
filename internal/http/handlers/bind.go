package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// FieldError describes one rejected request field by its JSON name.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// BindJSON decodes and validates the body into out, a pointer to one of the
// flat form DTOs. On failure it writes the error response and returns false.
func BindJSON(ctx *gin.Context, out any) bool {
	err := ctx.ShouldBindJSON(out)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		RespondError(ctx, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large", nil)
		return false
	}

	RespondBadRequest(ctx, "Invalid request body", parseBindError(err, formType(out)))
	return false
}

func parseBindError(err error, form reflect.Type) gin.H {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fields := make([]FieldError, 0, len(validationErrs))

		for _, fe := range validationErrs {
			param := fe.Param()
			// cross-field rules name another struct field
			if isCrossFieldRule(fe.Tag()) {
				param = jsonName(form, param)
			}

			fields = append(fields, FieldError{
				Field:   jsonName(form, fe.StructField()),
				Rule:    fe.Tag(),
				Param:   param,
				Message: validationMessage(fe.Tag(), param),
			})
		}
		return gin.H{"fields": fields}
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return gin.H{"json": "invalid_json_syntax"}
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := jsonName(form, typeErr.Field)

		return gin.H{
			"json":  "invalid_json_type",
			"field": field,
			"fields": []FieldError{{
				Field:   field,
				Rule:    "type",
				Message: "must be a " + jsonKind(typeErr.Type),
			}},
		}
	}

	return gin.H{"reason": err.Error()}
}

func formType(v any) reflect.Type {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Kind() == reflect.Struct {
		return t
	}
	return nil
}

// jsonName maps a Go field name (or an already-JSON name, as the decoder
// reports type errors) to the key clients send.
func jsonName(form reflect.Type, field string) string {
	field = strings.TrimSpace(field)
	if form == nil || field == "" {
		return field
	}

	sf, ok := form.FieldByName(field)
	if !ok {
		return field
	}

	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return sf.Name
	}
	return name
}

func isCrossFieldRule(rule string) bool {
	switch rule {
	case "required_without", "required_with", "eqfield", "nefield":
		return true
	}
	return false
}

func jsonKind(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "number"
	default:
		return t.String()
	}
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "required_without":
		return "is required when " + param + " is not set"
	case "email":
		return "must be a valid email address"
	case "max":
		return "must be at most " + param + " characters"
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
