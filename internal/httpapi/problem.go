package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/idempotency"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeProblem = "application/problem+json"

	maxBodyBytes = 1 << 20
)

// Problem — тело ошибки по RFC 7807.
type Problem struct {
	Type   string            `json:"type,omitempty"`
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeProblem(w http.ResponseWriter, p Problem) {
	if p.Title == "" {
		p.Title = http.StatusText(p.Status)
	}
	w.Header().Set("Content-Type", contentTypeProblem)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// problemFor классифицирует ошибку учёта. Детали неизвестных ошибок наружу не отдаются.
func problemFor(err error) Problem {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
		return Problem{Type: "validation", Status: http.StatusBadRequest, Detail: "request validation failed", Fields: fields}
	case errors.Is(err, errBadRequestBody):
		return Problem{Type: "bad-request", Status: http.StatusBadRequest, Detail: err.Error()}
	case domain.IsValidation(err):
		return Problem{Type: "validation", Status: http.StatusBadRequest, Detail: err.Error()}
	case domain.IsNotFound(err):
		return Problem{Type: "not-found", Status: http.StatusNotFound, Detail: err.Error()}
	case domain.IsPrecondition(err):
		return Problem{Type: "precondition", Status: http.StatusUnprocessableEntity, Detail: err.Error()}
	case domain.IsIdempotencyConflict(err), errors.Is(err, idempotency.ErrInProgress):
		return Problem{Type: "idempotency", Status: http.StatusConflict, Detail: err.Error()}
	case domain.IsVersionConflict(err),
		errors.Is(err, domain.ErrLockNotAcquired),
		errors.Is(err, domain.ErrOrderNumberTaken):
		return Problem{Type: "conflict", Status: http.StatusConflict, Detail: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return Problem{Type: "timeout", Status: http.StatusGatewayTimeout, Detail: "request timed out"}
	default:
		return Problem{Type: "internal", Status: http.StatusInternalServerError, Detail: "internal ledger error"}
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt", "min":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return fe.Error()
	}
}

var errBadRequestBody = errors.New("malformed request body")

// decodeJSON читает тело запроса строго: неизвестные поля и хвост после объекта отклоняются.
func decodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequestBody)
		}
		return fmt.Errorf("%w: %s", errBadRequestBody, strings.TrimPrefix(err.Error(), "json: "))
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after object", errBadRequestBody)
	}
	return nil
}
