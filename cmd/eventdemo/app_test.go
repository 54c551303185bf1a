package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/saylorsolutions/eventdemo/cli"
	"github.com/saylorsolutions/eventdemo/config"
	"github.com/saylorsolutions/eventdemo/dispatch"
	"github.com/saylorsolutions/eventdemo/retry"
	"github.com/saylorsolutions/eventdemo/server"
	"github.com/saylorsolutions/eventdemo/signup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOrderSchema = `
event "ORDER_PLACED" {
  field "order_id" {
    type = uuid
  }
  field "total" {
    type = float
  }
  field "coupon" {
    type     = string
    optional = true
  }
}
`

func testConfig() config.Config {
	return config.Config{
		Addr:            "127.0.0.1:0",
		LogLevel:        "error",
		LogFormat:       "text",
		ShutdownTimeout: time.Second,
		ServiceName:     "eventdemo-test",
	}
}

func testApp(t *testing.T) (*app, *cli.CommandSet, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	a := &app{conf: testConfig(), logOut: io.Discard}
	t.Cleanup(a.close)
	set := a.commands()
	set.Printer().Redirect(&out)
	return a, set, &out
}

func writeSchema(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func TestBuildRegistry(t *testing.T) {
	reg, err := buildRegistry(context.Background(), testConfig(), testLogger())
	require.NoError(t, err)
	assert.Equal(t, []dispatch.EventName{signup.EventActivated, signup.EventSignedUp}, reg.Events())
	assert.Equal(t, 1, reg.HandlerCount(signup.EventSignedUp))
}

func TestBuildRegistry_SchemaFiles(t *testing.T) {
	path := writeSchema(t, testOrderSchema)
	reg, err := buildRegistry(context.Background(), testConfig(), testLogger(), path)
	require.NoError(t, err)

	schema, ok := reg.Schema("ORDER_PLACED")
	require.True(t, ok)
	assert.Equal(t, 3, schema.Len())
	assert.ErrorIs(t, reg.Validate("ORDER_PLACED", map[string]any{"order_id": "nope", "total": 1.5}), dispatch.ErrSchemaValidation)
}

func TestBuildRegistry_ConflictingSchema(t *testing.T) {
	path := writeSchema(t, `
event "USER_SIGNED_UP" {
  field "email" {
    type = string
  }
}
`)
	_, err := buildRegistry(context.Background(), testConfig(), testLogger(), path)
	assert.ErrorIs(t, err, dispatch.ErrDuplicateSchema)
}

func TestBuildRegistry_Strict(t *testing.T) {
	conf := testConfig()
	conf.StrictEvents = true
	reg, err := buildRegistry(context.Background(), conf, testLogger())
	require.NoError(t, err)
	assert.ErrorIs(t, reg.Dispatch(context.Background(), "NOT_DECLARED", map[string]any{}), dispatch.ErrUnknownEvent)
}

func TestSchemasCommand(t *testing.T) {
	path := writeSchema(t, testOrderSchema)
	_, set, out := testApp(t)

	require.NoError(t, set.Exec(context.Background(), []string{"schemas", path}))
	output := out.String()
	assert.Contains(t, output, "EVENT")
	assert.Contains(t, output, "ORDER_PLACED")
	assert.Contains(t, output, "coupon:string?")
	assert.Contains(t, output, "user_id:uuid created_at:timestamp")
}

func TestSchemasCommand_BadFile(t *testing.T) {
	path := writeSchema(t, `event "BROKEN" {`)
	_, set, _ := testApp(t)
	assert.Error(t, set.Exec(context.Background(), []string{"ls", path}))
}

func TestInvalidConfig(t *testing.T) {
	a, set, _ := testApp(t)
	a.conf.LogLevel = "loud"
	err := set.Exec(context.Background(), []string{"schemas"})
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestTriggerCommand(t *testing.T) {
	reg, err := buildRegistry(context.Background(), testConfig(), testLogger())
	require.NoError(t, err)
	srv := httptest.NewServer(server.New(server.Config{}, reg, testLogger(), signup.Routes).Handler())
	t.Cleanup(srv.Close)

	tests := map[string]struct {
		args     []string
		expected string
		err      error
	}{
		"Trigger route": {
			args:     []string{"trigger", "--url", srv.URL},
			expected: "Event triggered",
		},
		"Named event": {
			args: []string{"t", "-u", srv.URL + "/", "USER_ACTIVATED",
				`{"user_id": "8a1f0e52-4b8e-4f38-9a65-bd1c6a0a3e8f", "activated_at": "2024-05-01T12:30:00Z"}`},
			expected: "USER_ACTIVATED",
		},
		"Invalid payload": {
			args:     []string{"trigger", "--url", srv.URL, "USER_SIGNED_UP", `{"user_id": 5}`},
			expected: "user_id",
			err:      errTriggerFailed,
		},
		"Payload is not JSON": {
			args: []string{"trigger", "--url", srv.URL, "USER_SIGNED_UP", `user_id=5`},
			err:  &cli.UsageError{},
		},
		"Too many arguments": {
			args: []string{"trigger", "--url", srv.URL, "USER_SIGNED_UP", "{}", "extra"},
			err:  cli.ErrArgMap,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, set, out := testApp(t)
			err := set.Exec(context.Background(), tc.args)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
			} else {
				assert.NoError(t, err)
			}
			assert.Contains(t, out.String(), tc.expected)
		})
	}
}

func TestServeCommand_RejectsArgs(t *testing.T) {
	_, set, _ := testApp(t)
	err := set.Exec(context.Background(), []string{"serve", "extra"})
	assert.ErrorIs(t, err, &cli.UsageError{})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTriggerCommand_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, set, _ := testApp(t)
	err := set.Exec(context.Background(), []string{"trigger", "--url", srv.URL, "--attempts", "2", "--retry-delay", "1ms"})
	assert.ErrorIs(t, err, retry.ErrExhausted)
}
