package errors

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		err  *AppError
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{BadRequest("bad"), http.StatusBadRequest},
		{NotFound("missing"), http.StatusNotFound},
		{RateLimit("slow down"), http.StatusTooManyRequests},
		{ServiceUnavailable("down"), http.StatusServiceUnavailable},
		{Internal("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.StatusCode)
		})
	}
}

func TestWrapUnwraps(t *testing.T) {
	cause := fmt.Errorf("disk on fire")
	err := InternalWrap(cause, "export failed")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestFromValidation(t *testing.T) {
	type request struct {
		Start string   `validate:"omitempty,datetime=2006-01-02"`
		Years []string `validate:"dive,numeric,len=4"`
	}

	err := validator.New().Struct(request{Start: "yesterday", Years: []string{"2023", "20x4"}})
	require.Error(t, err)

	appErr := FromValidation(err)
	assert.Equal(t, CodeValidation, appErr.Code)
	assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)
	require.Len(t, appErr.Fields, 2)
	assert.Equal(t, "Start", appErr.Fields[0].Field)
	assert.Contains(t, appErr.Fields[0].Message, "2006-01-02")
	assert.Equal(t, "Years[1]", appErr.Fields[1].Field)
	assert.NotEmpty(t, appErr.Details)

	plain := FromValidation(fmt.Errorf("not json"))
	assert.Equal(t, CodeBadRequest, plain.Code)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   ErrorCode
	}{
		{"app error", NotFound("no such chart"), http.StatusNotFound, CodeNotFound},
		{"wrapped app error", fmt.Errorf("handler: %w", BadRequest("bad")), http.StatusBadRequest, CodeBadRequest},
		{"plain error", fmt.Errorf("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/summaries", nil)
			w := httptest.NewRecorder()

			WriteError(w, req, discardLogger(), tt.err, "req-1")

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var resp struct {
				Error   AppError `json:"error"`
				Success bool     `json:"success"`
			}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, "req-1", resp.Error.RequestID)
		})
	}
}

func TestWriteSuccessWithHeaders(t *testing.T) {
	w := httptest.NewRecorder()

	WriteSuccessWithHeaders(w, map[string]int{"records": 3}, map[string]string{"Cache-Control": "no-store"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.JSONEq(t, `{"data":{"records":3},"success":true}`, w.Body.String())
}
