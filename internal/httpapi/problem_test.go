package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vladislavdragonenkov/muzbazar/internal/domain"
	"github.com/vladislavdragonenkov/muzbazar/internal/service/idempotency"
)

func TestProblemFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{domain.ErrInvalidAmount, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", domain.ErrInvalidStatus), http.StatusBadRequest},
		{domain.ErrOrderNotFound, http.StatusNotFound},
		{domain.ErrClientNotFound, http.StatusNotFound},
		{domain.ErrAmountExceedsDebt, http.StatusUnprocessableEntity},
		{domain.ErrNoDebtToPay, http.StatusUnprocessableEntity},
		{domain.ErrInsufficientStock, http.StatusUnprocessableEntity},
		{domain.ErrIdempotencyHashMismatch, http.StatusConflict},
		{idempotency.ErrInProgress, http.StatusConflict},
		{domain.ErrOrderVersionConflict, http.StatusConflict},
		{domain.ErrLockNotAcquired, http.StatusConflict},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("pq: connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		p := problemFor(tt.err)
		if p.Status != tt.status {
			t.Fatalf("problemFor(%v) status = %d, want %d", tt.err, p.Status, tt.status)
		}
	}

	if p := problemFor(errors.New("secret dsn")); strings.Contains(p.Detail, "secret") {
		t.Fatalf("internal error leaked: %q", p.Detail)
	}
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Amount int64 `json:"amount"`
	}

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"amount": 5}`, false},
		{"empty", ``, true},
		{"unknown field", `{"amount": 5, "extra": 1}`, true},
		{"trailing data", `{"amount": 5}{"amount": 6}`, true},
		{"wrong type", `{"amount": "five"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.payload))
			var b body
			err := decodeJSON(req, &b)
			if tt.wantErr {
				if !errors.Is(err, errBadRequestBody) {
					t.Fatalf("expected errBadRequestBody, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if b.Amount != 5 {
				t.Fatalf("amount = %d, want 5", b.Amount)
			}
		})
	}
}
