package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestGetCorrelationID(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{"set", context.WithValue(context.Background(), CorrelationIDKey, "abc"), "abc"},
		{"empty", context.Background(), ""},
		{"wrong type", context.WithValue(context.Background(), CorrelationIDKey, 12345), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCorrelationID(tt.ctx); got != tt.want {
				t.Errorf("GetCorrelationID() = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestCorrelationIDMiddleware_GeneratesID(t *testing.T) {
	var captured string
	handler := correlationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetCorrelationID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if _, err := uuid.Parse(captured); err != nil {
		t.Errorf("generated id %q is not a UUID: %v", captured, err)
	}
	if got := rec.Header().Get(CorrelationIDHeader); got != captured {
		t.Errorf("response header = %q; want %q", got, captured)
	}
}

func TestCorrelationIDMiddleware_PropagatesExistingID(t *testing.T) {
	var captured string
	handler := correlationIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetCorrelationID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(CorrelationIDHeader, "upstream-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if captured != "upstream-id" || rec.Header().Get(CorrelationIDHeader) != "upstream-id" {
		t.Errorf("captured %q, header %q; want upstream-id", captured, rec.Header().Get(CorrelationIDHeader))
	}
}

func TestUserIDMiddleware(t *testing.T) {
	var captured string
	handler := userIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetUserID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserIDHeader, "user-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if captured != "user-1" {
		t.Errorf("GetUserID() = %q; want user-1", captured)
	}

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if captured != "" {
		t.Errorf("GetUserID() = %q; want empty without header", captured)
	}
}

func TestLoggingMiddleware_CapturesStatusCode(t *testing.T) {
	tests := []struct {
		name        string
		statusCode  int
		writeHeader bool
	}{
		{"ok", http.StatusOK, true},
		{"conflict", http.StatusConflict, true},
		{"locked", http.StatusLocked, true},
		{"internal error", http.StatusInternalServerError, true},
		{"implicit ok", http.StatusOK, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.writeHeader {
					w.WriteHeader(tt.statusCode)
				}
				w.Write([]byte("body"))
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

			if rec.Code != tt.statusCode {
				t.Errorf("status = %d; want %d", rec.Code, tt.statusCode)
			}
			if rec.Body.String() != "body" {
				t.Errorf("body = %q; want passthrough", rec.Body.String())
			}
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"string", "boom"},
		{"error", http.ErrAbortHandler},
		// Go 1.21+ turns panic(nil) into a *runtime.PanicNilError.
		{"nil", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				panic(tt.value)
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d; want 500", rec.Code)
			}
			var body map[string]any
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["error"] != "internal server error" {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func TestMiddlewareChain_PanicKeepsCorrelationID(t *testing.T) {
	var captured string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetCorrelationID(r.Context())
		panic("simulated panic")
	})
	handler := recoveryMiddleware(correlationIDMiddleware(userIDMiddleware(loggingMiddleware(inner))))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/submissions", nil))

	if captured == "" {
		t.Error("correlation id should be set before the handler runs")
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d; want 500", rec.Code)
	}
	if rec.Header().Get(CorrelationIDHeader) != captured {
		t.Error("correlation id header should survive a panic")
	}
}
