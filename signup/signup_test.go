package signup

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/saylorsolutions/eventdemo/dispatch"
	"github.com/saylorsolutions/eventdemo/eventhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	reg := dispatch.NewRegistry(dispatch.WithLogger(logger))
	require.NoError(t, Register(reg, logger))

	assert.Equal(t, []dispatch.EventName{EventActivated, EventSignedUp}, reg.Events())
	assert.Equal(t, 1, reg.HandlerCount(EventSignedUp))

	id := uuid.New()
	require.NoError(t, reg.Dispatch(context.Background(), EventSignedUp, SignUpPayload{UserID: id, CreatedAt: time.Now()}))
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "Received event", rec["msg"])
	assert.Equal(t, string(EventSignedUp), rec["event"])
	assert.Equal(t, "signup.SignUpPayload", rec["payload_type"])
	assert.Equal(t, map[string]any{
		"UserID":    "uuid.UUID",
		"CreatedAt": "time.Time",
	}, rec["field_types"])

	err := reg.Dispatch(context.Background(), EventSignedUp, map[string]any{"user_id": "not-a-uuid"})
	assert.ErrorIs(t, err, dispatch.ErrSchemaValidation)

	assert.ErrorIs(t, Register(reg, logger), dispatch.ErrDuplicateSchema)
}

func TestRegister_MapPayload(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	reg := dispatch.NewRegistry(dispatch.WithLogger(logger))
	require.NoError(t, Register(reg, logger))

	id := uuid.New()
	require.NoError(t, reg.Dispatch(context.Background(), EventActivated, map[string]any{
		"user_id":      id.String(),
		"activated_at": "2024-05-01T12:30:00Z",
	}))
	assert.Contains(t, buf.String(), id.String())
	assert.Contains(t, buf.String(), "signup.ActivatedPayload")
}

func TestTriggerEvent(t *testing.T) {
	reg := dispatch.NewRegistry(dispatch.WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	require.NoError(t, Register(reg, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	var received []SignUpPayload
	reg.RegisterHandler(EventSignedUp, dispatch.Typed(func(ctx context.Context, name dispatch.EventName, payload SignUpPayload) error {
		received = append(received, payload)
		return nil
	}))

	r := chi.NewRouter()
	r.Use(eventhttp.Middleware(reg, nil))
	Routes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/trigger_event", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"msg":"Event triggered"}`, w.Body.String())
	require.Len(t, received, 1)
	assert.NotEqual(t, uuid.Nil, received[0].UserID)
	assert.WithinDuration(t, time.Now(), received[0].CreatedAt, time.Minute)
}

func TestTriggerEvent_NoCollector(t *testing.T) {
	r := chi.NewRouter()
	Routes(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/trigger_event", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
