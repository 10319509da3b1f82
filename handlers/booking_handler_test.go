package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"fadedreams/roadassist/domain"
)

func testHandler() *Handler {
	return NewHandler(nil, nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func noopSpan() trace.Span {
	return trace.SpanFromContext(context.Background())
}

func TestWriteErrorStatusMapping(t *testing.T) {
	h := testHandler()
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", (&domain.ValidationError{}).Add("pincode", "please enter a valid 6-digit pincode"), http.StatusBadRequest},
		{"unknown category", fmt.Errorf("%w: %q", domain.ErrUnknownCategory, "truck"), http.StatusBadRequest},
		{"unauthorized", domain.UnauthorizedError(domain.RoleCustomer, domain.EventAccept), http.StatusForbidden},
		{"not found", fmt.Errorf("booking bk-1: %w", domain.ErrNotFound), http.StatusNotFound},
		{"illegal transition", domain.IllegalTransitionError(domain.StatusPending, domain.EventStart), http.StatusConflict},
		{"authorization failed", fmt.Errorf("%w: declined", domain.ErrAuthorizationFailed), http.StatusPaymentRequired},
		{"unexpected", errors.New("connection reset"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeError(rec, noopSpan(), tc.err)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestWriteErrorValidationCarriesFields(t *testing.T) {
	h := testHandler()
	rec := httptest.NewRecorder()
	verr := (&domain.ValidationError{}).
		Add("cvv", "please enter a valid CVV").
		Add("cardName", "please enter the name on card")
	h.writeError(rec, noopSpan(), verr)

	var body struct {
		Error  string              `json:"error"`
		Fields []domain.FieldError `json:"fields"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body.Fields, 2)
	assert.Equal(t, "cvv", body.Fields[0].Field)
	assert.Equal(t, "cardName", body.Fields[1].Field)
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	h := testHandler()
	rec := httptest.NewRecorder()
	h.writeError(rec, noopSpan(), errors.New("mongo: connection refused at 10.0.0.3"))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")
	assert.Contains(t, rec.Body.String(), "temporary failure")
}
