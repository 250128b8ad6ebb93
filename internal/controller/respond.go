// internal/controller/respond.go
package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/unclebandit/campaign-mailer/internal/errors"
	"github.com/unclebandit/campaign-mailer/internal/logger"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ErrorBody is the payload of every non-2xx response.
type ErrorBody struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps application errors onto HTTP statuses. Anything untyped is
// logged and reported as a 500 without its message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case appErrors.IsValidation(err):
		WriteJSON(w, http.StatusBadRequest, ErrorBody{Error: err.Error()})
	case appErrors.IsNotFound(err):
		WriteJSON(w, http.StatusNotFound, ErrorBody{Error: err.Error()})
	case appErrors.IsConflict(err):
		WriteJSON(w, http.StatusConflict, ErrorBody{Error: err.Error()})
	default:
		logger.Named("http").Error("❌ request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Err(err))
		WriteJSON(w, http.StatusInternalServerError, ErrorBody{Error: "internal server error"})
	}
}

// decodeBody reads a JSON body into v and runs struct validation. An empty
// body is accepted when allowEmpty is set. It reports false after writing
// the error response.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			WriteJSON(w, http.StatusBadRequest, ErrorBody{Error: "invalid body"})
			return false
		}
	}
	if err := validate.Struct(v); err != nil {
		WriteJSON(w, http.StatusBadRequest, validationBody(err))
		return false
	}
	return true
}

func validationBody(err error) ErrorBody {
	fields := map[string][]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			field := fe.Field()
			fields[field] = append(fields[field], fe.Tag())
		}
	}
	if len(fields) == 0 {
		return ErrorBody{Error: err.Error()}
	}
	return ErrorBody{Error: "validation_failed", Fields: fields}
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, appErrors.NewValidation(key, "must be an integer")
	}
	return v, nil
}

func queryBool(r *http.Request, key string) (*bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, appErrors.NewValidation(key, "must be a boolean")
	}
	return &v, nil
}
