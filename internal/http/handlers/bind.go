package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	"github.com/geocoder89/trialbooking/internal/domain/trial"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

var ErrTrailingInput = errors.New("request body must hold a single JSON value")

var registerOnce sync.Once

// RegisterValidations installs the custom binding rules on gin's validator.
func RegisterValidations() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			return !trial.IsBlank(fl.Field().String())
		})
	})
}

// BindStrict binds the JSON body into out. Bodies that parse but break the
// schema come back as field errors; anything else (bad JSON, wrong top-level
// shape) is returned as err.
func BindStrict(ctx *gin.Context, out interface{}) ([]FieldError, error) {
	raw, err := ctx.GetRawData()
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if err := singleJSONValue(raw); err != nil {
		return nil, err
	}

	err = binding.JSON.BindBody(raw, out)
	if err == nil {
		return nil, nil
	}

	if fields := fieldErrors(err, out); fields != nil {
		return fields, nil
	}
	return nil, err
}

// singleJSONValue fails unless raw is exactly one JSON value, optionally
// surrounded by whitespace.
func singleJSONValue(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))

	var first, extra json.RawMessage
	if err := dec.Decode(&first); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return ErrTrailingInput
	}
	return nil
}

func fieldErrors(err error, out interface{}) []FieldError {
	rootType := baseStructType(out)

	var validatorError validator.ValidationErrors

	if errors.As(err, &validatorError) {
		fields := make([]FieldError, 0, len(validatorError))

		for _, fieldError := range validatorError {
			rule := fieldError.Tag()
			param := fieldError.Param()

			fields = append(fields, FieldError{
				Field:   jsonName(rootType, fieldError.StructField()),
				Rule:    rule,
				Param:   param,
				Message: validationMessage(rule, param),
			})
		}
		return fields
	}

	// a field of the wrong JSON type, e.g. a number where a string is expected
	var unmatchedTypeError *json.UnmarshalTypeError

	if errors.As(err, &unmatchedTypeError) && unmatchedTypeError.Field != "" {
		field := strings.TrimSpace(unmatchedTypeError.Field)
		if name := jsonName(rootType, field); name != "" {
			field = name
		}

		return []FieldError{{
			Field:   field,
			Rule:    "type",
			Message: fmt.Sprintf("must be of type %s", unmatchedTypeError.Type.String()),
		}}
	}

	return nil
}

func baseStructType(v interface{}) reflect.Type {
	t := reflect.TypeOf(v)

	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	if t != nil && t.Kind() == reflect.Struct {
		return t
	}

	return nil
}

// jsonName maps a struct field name to its json key; unknown names pass through.
func jsonName(rootType reflect.Type, structField string) string {
	if rootType == nil {
		return structField
	}

	sf, ok := rootType.FieldByName(structField)
	if !ok {
		return structField
	}

	tag := sf.Tag.Get("json")
	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return sf.Name
	}

	return name
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required", "notblank":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
