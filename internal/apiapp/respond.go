package apiapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/liftcare/liftsuite/internal/middleware"
	"github.com/liftcare/liftsuite/internal/store"
)

const maxJSONBody = 1 << 20

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type pageResponse[T any] struct {
	store.Page[T]
	TotalPages int `json:"totalPages"`
}

func writePage[T any](w http.ResponseWriter, page store.Page[T]) {
	writeJSON(w, http.StatusOK, pageResponse[T]{Page: page, TotalPages: page.TotalPages()})
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and runs its validate tags. The returned error is safe to
// show to the caller.
func (s *server) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	if err := s.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// validationError turns a validator error into the message shown to callers.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return validationMessage(verrs[0])
	}
	return errors.New("invalid request body")
}

func validationMessage(fe validator.FieldError) error {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", field)
	case "email":
		return fmt.Errorf("%s must be a valid email", field)
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min", "gte":
		return fmt.Errorf("%s must be at least %s", field, fe.Param())
	case "gt":
		return fmt.Errorf("%s must be greater than %s", field, fe.Param())
	case "max", "lte":
		return fmt.Errorf("%s must be at most %s", field, fe.Param())
	case "datetime":
		return fmt.Errorf("%s must be a date (YYYY-MM-DD)", field)
	default:
		return fmt.Errorf("%s is invalid", field)
	}
}

// storeError maps store sentinels to HTTP statuses and logs everything else.
func (s *server) storeError(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, what+" already exists")
	default:
		s.logger.Error("store operation failed",
			zap.String("resource", what),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.RequestIDFrom(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "unable to process "+what)
	}
}

func pathID(r *http.Request) string {
	return strings.TrimSpace(mux.Vars(r)["id"])
}

func parsePositiveInt(raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseBoolQueryValue(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// listFilter reads the common list query parameters. Role scoping is applied separately.
func listFilter(r *http.Request) store.ListFilter {
	q := r.URL.Query()
	return store.ListFilter{
		Status:       strings.TrimSpace(q.Get("status")),
		ClientID:     strings.TrimSpace(q.Get("client_id")),
		ElevatorID:   strings.TrimSpace(q.Get("elevator_id")),
		TechnicianID: strings.TrimSpace(q.Get("technician_id")),
		Query:        strings.TrimSpace(q.Get("q")),
		From:         strings.TrimSpace(q.Get("from")),
		To:           strings.TrimSpace(q.Get("to")),
		Page:         parsePositiveInt(q.Get("page"), 1),
		PerPage:      parsePositiveInt(q.Get("per_page"), store.DefaultPerPage),
	}
}
