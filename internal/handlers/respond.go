package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"sanctuary/internal/apperr"
	mw "sanctuary/internal/middleware"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// normalizer is implemented by requests whose fields are cleaned up before
// validation.
type normalizer interface {
	normalize()
}

// decodeJSON reads a size-limited JSON body into dst, normalizes it and
// validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("invalid body").Wrap(err)
	}
	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return apperr.Validation("invalid body").Wrap(err)
	}
	fe := fields[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fe.Field() + " is required"
	case "email":
		msg = fe.Field() + " must be a valid email address"
	case "max":
		msg = fe.Field() + " must be at most " + fe.Param() + " characters"
	default:
		msg = fe.Field() + " is invalid"
	}
	return apperr.Validation(msg).Wrap(err)
}

// fail writes err and logs it when the server is at fault.
func fail(logger *zap.Logger, w http.ResponseWriter, r *http.Request, err error) {
	if mw.StatusOf(err) >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	mw.WriteError(w, err)
}
