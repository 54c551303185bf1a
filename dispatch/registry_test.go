package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const (
	testSignedUp  EventName = "USER_SIGNED_UP"
	testActivated EventName = "USER_ACTIVATED"
	testNoSchema  EventName = "NO_SCHEMA"
)

var errTestHandler = errors.New("test handler error")

type testSignUpPayload struct {
	UserID    uuid.UUID `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func TestRegistry_Dispatch_UserSignedUp(t *testing.T) {
	reg := testRegistry(t)
	var (
		mux      sync.Mutex
		received []Payload
	)
	reg.RegisterFunc(testSignedUp, func(ctx context.Context, name EventName, payload Payload) error {
		mux.Lock()
		defer mux.Unlock()
		received = append(received, payload)
		return nil
	})

	valid := testSignUpPayload{UserID: uuid.New(), CreatedAt: time.Now()}
	require.NoError(t, reg.Dispatch(context.Background(), testSignedUp, valid))
	require.Len(t, received, 1)
	assert.Equal(t, valid, received[0])

	err := reg.Dispatch(context.Background(), testSignedUp, map[string]any{"user_id": "not-a-uuid"})
	assert.ErrorIs(t, err, ErrSchemaValidation)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, testSignedUp, verr.Event)
	assert.Contains(t, verr.FieldMap(), "user_id")
	assert.Contains(t, verr.FieldMap(), "created_at")
	assert.Len(t, received, 1, "Handler should not have been invoked for an invalid payload")
}

func TestRegistry_Dispatch_InvalidPayloadInvokesNoHandlers(t *testing.T) {
	tests := map[string]Payload{
		"Nil payload":         nil,
		"Not an object":       "a string",
		"Empty map":           map[string]any{},
		"Wrong types":         map[string]any{"user_id": 5, "created_at": true},
		"Bad timestamp":       map[string]any{"user_id": uuid.NewString(), "created_at": "yesterday"},
		"Nil struct pointer":  (*testSignUpPayload)(nil),
		"Missing created_at":  map[string]any{"user_id": uuid.New()},
		"Non-string map keys": map[int]any{1: "a"},
	}

	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			reg := testRegistry(t)
			var calls atomic.Int32
			for i := 0; i < 3; i++ {
				reg.RegisterFunc(testSignedUp, func(ctx context.Context, name EventName, payload Payload) error {
					calls.Add(1)
					return nil
				})
			}
			err := reg.Dispatch(context.Background(), testSignedUp, payload)
			assert.ErrorIs(t, err, ErrSchemaValidation)
			assert.Equal(t, int32(0), calls.Load())
		})
	}
}

func TestRegistry_Dispatch_Order(t *testing.T) {
	reg := testRegistry(t)
	var order []int
	for i := 1; i <= 3; i++ {
		reg.RegisterFunc(testNoSchema, func(ctx context.Context, name EventName, payload Payload) error {
			order = append(order, i)
			return nil
		})
	}
	require.NoError(t, reg.Dispatch(context.Background(), testNoSchema, "anything"))
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestRegistry_Dispatch_OnlyMatchingName(t *testing.T) {
	reg := testRegistry(t)
	var signedUp, activated atomic.Int32
	reg.RegisterFunc(testSignedUp, func(ctx context.Context, name EventName, payload Payload) error {
		signedUp.Add(1)
		return nil
	})
	reg.RegisterFunc(testActivated, func(ctx context.Context, name EventName, payload Payload) error {
		assert.Equal(t, testActivated, name)
		activated.Add(1)
		return nil
	})
	require.NoError(t, reg.Dispatch(context.Background(), testActivated, nil))
	assert.Equal(t, int32(0), signedUp.Load())
	assert.Equal(t, int32(1), activated.Load())
}

func TestRegistry_Dispatch_DuplicateHandler(t *testing.T) {
	reg := testRegistry(t)
	var calls atomic.Int32
	handler := HandlerFunc(func(ctx context.Context, name EventName, payload Payload) error {
		calls.Add(1)
		return nil
	})
	reg.RegisterHandler(testNoSchema, handler)
	reg.RegisterHandler(testNoSchema, handler)
	require.NoError(t, reg.Dispatch(context.Background(), testNoSchema, nil))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, reg.HandlerCount(testNoSchema))
}

func TestRegistry_Dispatch_NoHandlers(t *testing.T) {
	reg := testRegistry(t)
	assert.NoError(t, reg.Dispatch(context.Background(), "NOT_REGISTERED", nil))
	assert.NoError(t, reg.Dispatch(context.Background(), testSignedUp, testSignUpPayload{UserID: uuid.New(), CreatedAt: time.Now()}),
		"An event with a schema but no handlers is still a no-op")
	assert.ErrorIs(t, reg.Dispatch(context.Background(), "", nil), ErrInvalidEvent)
}

func TestRegistry_Dispatch_StrictEvents(t *testing.T) {
	reg := NewRegistry(WithLogger(testLogger()), StrictEvents())
	err := reg.Dispatch(context.Background(), "NOT_REGISTERED", nil)
	assert.ErrorIs(t, err, ErrUnknownEvent)
	assert.ErrorIs(t, reg.Validate("NOT_REGISTERED", nil), ErrUnknownEvent)

	require.NoError(t, reg.RegisterSchema(testSignedUp, testSignUpSchema(t)))
	assert.NoError(t, reg.Dispatch(context.Background(), testSignedUp, testSignUpPayload{UserID: uuid.New(), CreatedAt: time.Now()}),
		"A known event without handlers should not fail")
}

func TestRegistry_RegisterSchema_Duplicate(t *testing.T) {
	reg := testRegistry(t)
	replacement := MustSchema(Required("name", TypeString))

	err := reg.RegisterSchema(testSignedUp, replacement)
	assert.ErrorIs(t, err, ErrDuplicateSchema)

	schema, ok := reg.Schema(testSignedUp)
	require.True(t, ok)
	assert.Equal(t, testSignUpSchema(t), schema, "The first schema should still be registered")

	var calls atomic.Int32
	reg.RegisterFunc(testSignedUp, func(ctx context.Context, name EventName, payload Payload) error {
		calls.Add(1)
		return nil
	})
	assert.ErrorIs(t, reg.Dispatch(context.Background(), testSignedUp, map[string]any{"name": "ignored"}), ErrSchemaValidation,
		"Payload matching the rejected schema should not validate")
	assert.NoError(t, reg.Dispatch(context.Background(), testSignedUp, testSignUpPayload{UserID: uuid.New(), CreatedAt: time.Now()}))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRegistry_RegisterSchema_EmptyName(t *testing.T) {
	reg := testRegistry(t)
	assert.ErrorIs(t, reg.RegisterSchema("", Schema{}), ErrInvalidEvent)
}

func TestRegistry_RegisterHandler_Invalid(t *testing.T) {
	reg := testRegistry(t)
	assert.Panics(t, func() {
		reg.RegisterHandler(testSignedUp, nil)
	})
	assert.Panics(t, func() {
		reg.RegisterFunc(testSignedUp, nil)
	})
	assert.Panics(t, func() {
		reg.RegisterFunc("", func(ctx context.Context, name EventName, payload Payload) error { return nil })
	})
	assert.Panics(t, func() {
		reg.OnHandlerError(nil)
	})
}

func TestRegistry_Dispatch_HandlerIsolation(t *testing.T) {
	reg := testRegistry(t)
	var (
		ran       []string
		observed  []error
		observeMu sync.Mutex
	)
	reg.OnHandlerError(func(ctx context.Context, name EventName, err error) {
		observeMu.Lock()
		defer observeMu.Unlock()
		assert.Equal(t, testNoSchema, name)
		observed = append(observed, err)
	})
	reg.RegisterFunc(testNoSchema, func(ctx context.Context, name EventName, payload Payload) error {
		ran = append(ran, "first")
		return errTestHandler
	})
	reg.RegisterFunc(testNoSchema, func(ctx context.Context, name EventName, payload Payload) error {
		ran = append(ran, "second")
		panic("boom")
	})
	reg.RegisterFunc(testNoSchema, func(ctx context.Context, name EventName, payload Payload) error {
		ran = append(ran, "third")
		return nil
	})

	err := reg.Dispatch(context.Background(), testNoSchema, nil)
	assert.Equal(t, []string{"first", "second", "third"}, ran, "All handlers should run despite failures")
	assert.ErrorIs(t, err, ErrHandlerFailed)
	assert.ErrorIs(t, err, errTestHandler)
	var herr *HandlerError
	require.ErrorAs(t, err, &herr)
	require.Len(t, herr.Failures, 2)
	assert.Equal(t, 0, herr.Failures[0].Index)
	assert.Equal(t, 1, herr.Failures[1].Index)
	assert.Contains(t, herr.Failures[1].Err.Error(), "boom")
	assert.Len(t, observed, 2)
}

func TestRegistry_Dispatch_Concurrent(t *testing.T) {
	const (
		numEvents     = 8
		numDispatches = 50
		numHandlers   = 3
	)
	reg := testRegistry(t)
	records := make([][]int, numEvents)
	for e := 0; e < numEvents; e++ {
		name := EventName(fmt.Sprintf("EVENT_%d", e))
		for h := 0; h < numHandlers; h++ {
			reg.RegisterFunc(name, func(ctx context.Context, name EventName, payload Payload) error {
				// Only one goroutine dispatches each event, so this slice isn't shared.
				records[e] = append(records[e], h)
				return nil
			})
		}
	}

	var wg sync.WaitGroup
	for e := 0; e < numEvents; e++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := EventName(fmt.Sprintf("EVENT_%d", e))
			for i := 0; i < numDispatches; i++ {
				assert.NoError(t, reg.Dispatch(context.Background(), name, i))
			}
		}()
	}
	wg.Wait()

	for e, record := range records {
		require.Len(t, record, numDispatches*numHandlers, "Event %d", e)
		for i, h := range record {
			assert.Equal(t, i%numHandlers, h, "Event %d handler order was interleaved at %d", e, i)
		}
	}
}

func TestRegistry_Dispatch_Reentrant(t *testing.T) {
	reg := testRegistry(t)
	var activated atomic.Bool
	reg.RegisterFunc(testActivated, func(ctx context.Context, name EventName, payload Payload) error {
		activated.Store(true)
		return nil
	})
	reg.RegisterHandler(testSignedUp, Typed(func(ctx context.Context, name EventName, p testSignUpPayload) error {
		return reg.Dispatch(ctx, testActivated, map[string]any{"user_id": p.UserID.String()})
	}))

	done := make(chan error, 1)
	go func() {
		done <- reg.Dispatch(context.Background(), testSignedUp, testSignUpPayload{UserID: uuid.New(), CreatedAt: time.Now()})
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Dispatching from a handler should not deadlock")
	}
	assert.True(t, activated.Load())
}

func TestRegistry_Events(t *testing.T) {
	reg := testRegistry(t)
	reg.RegisterFunc(testActivated, func(ctx context.Context, name EventName, payload Payload) error { return nil })
	reg.RegisterFunc(testSignedUp, func(ctx context.Context, name EventName, payload Payload) error { return nil })

	assert.Equal(t, []EventName{testActivated, testSignedUp}, reg.Events())
	assert.Equal(t, 1, reg.HandlerCount(testSignedUp))
	assert.Equal(t, 0, reg.HandlerCount(testNoSchema))
	_, ok := reg.Schema(testActivated)
	assert.False(t, ok)
}

func TestRegistry_Validate(t *testing.T) {
	reg := testRegistry(t)
	var calls atomic.Int32
	reg.RegisterFunc(testSignedUp, func(ctx context.Context, name EventName, payload Payload) error {
		calls.Add(1)
		return nil
	})
	assert.NoError(t, reg.Validate(testSignedUp, map[string]any{
		"user_id":    uuid.NewString(),
		"created_at": time.Now().Format(time.RFC3339),
	}))
	assert.ErrorIs(t, reg.Validate(testSignedUp, map[string]any{}), ErrSchemaValidation)
	assert.NoError(t, reg.Validate(testNoSchema, 42), "Events without a schema accept anything")
	assert.Equal(t, int32(0), calls.Load(), "Validate should never invoke handlers")
}

func TestRegistry_Dispatch_Tracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})
	reg := NewRegistry(WithLogger(testLogger()), WithTracerProvider(provider))
	require.NoError(t, reg.RegisterSchema(testSignedUp, testSignUpSchema(t)))
	reg.RegisterFunc(testSignedUp, func(ctx context.Context, name EventName, payload Payload) error { return nil })

	require.NoError(t, reg.Dispatch(context.Background(), testSignedUp, testSignUpPayload{UserID: uuid.New(), CreatedAt: time.Now()}))
	require.Error(t, reg.Dispatch(context.Background(), testSignedUp, map[string]any{}))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "dispatch USER_SIGNED_UP", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestNewRegistry_InvalidConfig(t *testing.T) {
	assert.Panics(t, func() {
		NewRegistry(WithLogger(nil))
	})
	assert.Panics(t, func() {
		NewRegistry(WithTracerProvider(nil))
	})
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry(WithLogger(testLogger()))
	require.NoError(t, reg.RegisterSchema(testSignedUp, testSignUpSchema(t)))
	return reg
}

func testSignUpSchema(t *testing.T) Schema {
	t.Helper()
	schema, err := SchemaOf[testSignUpPayload]()
	require.NoError(t, err)
	return schema
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
