package apihttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

const maxBodyBytes = 1 << 20

// RequestError describes a body or query that failed to parse or validate.
// A zero Status means 400.
type RequestError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *RequestError) Error() string { return e.Message }

// Decoder reads JSON bodies and validates them with struct tags.
type Decoder struct {
	validate *validator.Validate
}

// NewDecoder builds a decoder that reports fields by their json names.
func NewDecoder() *Decoder {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return &Decoder{validate: validate}
}

// Decode reads r's body into dst and validates it.
func (d *Decoder) Decode(r *http.Request, dst any) error {
	if r.Body == nil {
		return &RequestError{Message: "request body is required"}
	}
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &RequestError{Status: http.StatusRequestEntityTooLarge, Message: fmt.Sprintf("request body too large, limit is %d bytes", tooLarge.Limit)}
		}
		return &RequestError{Message: "read body error"}
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return &RequestError{Message: "request body is required"}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &RequestError{Message: fmt.Sprintf("invalid json: %v", err)}
	}
	return d.Validate(dst)
}

// Validate runs struct validation on value.
func (d *Decoder) Validate(value any) error {
	err := d.validate.Struct(value)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &RequestError{Message: "invalid input"}
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		fields[fieldErr.Field()] = fieldErr.Tag()
	}
	return &RequestError{Message: "validation failed", Fields: fields}
}

// ParseDate parses an optional YYYY-MM-DD value.
func ParseDate(key, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, &RequestError{Message: fmt.Sprintf("%s must be YYYY-MM-DD", key)}
	}
	return parsed, nil
}

// ParseLimit parses an optional positive limit query parameter.
func ParseLimit(r *http.Request, fallback, max int) (int, error) {
	value := r.URL.Query().Get("limit")
	if value == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit <= 0 {
		return 0, &RequestError{Message: "limit must be a positive integer"}
	}
	if max > 0 && limit > max {
		limit = max
	}
	return limit, nil
}

// PathParts splits the path below prefix into its segments.
func PathParts(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}
