package schemafile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/saylorsolutions/eventdemo/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSignUpSchema = `
event "USER_SIGNED_UP" {
  description = "A new user completed sign up."

  field "user_id" {
    type = uuid
  }
  field "created_at" {
    type = "timestamp"
  }
  field "referrer" {
    type     = string
    optional = true
  }
}
`

func TestParse(t *testing.T) {
	defs, err := Parse([]byte(testSignUpSchema), "signup.hcl")
	require.NoError(t, err)
	require.Len(t, defs, 1)

	def := defs[0]
	assert.Equal(t, dispatch.EventName("USER_SIGNED_UP"), def.Event)
	assert.Equal(t, "A new user completed sign up.", def.Description)
	assert.Equal(t, "signup.hcl", def.Source)
	assert.Equal(t, []dispatch.Field{
		dispatch.Required("user_id", dispatch.TypeUUID),
		dispatch.Required("created_at", dispatch.TypeTimestamp),
		dispatch.Optional("referrer", dispatch.TypeString),
	}, def.Schema.Fields())
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"Syntax error": `event "A" {`,
		"Unknown type": `
event "A" {
  field "x" {
    type = decimal
  }
}`,
		"Type is not a string": `
event "A" {
  field "x" {
    type = 5
  }
}`,
		"Missing type": `
event "A" {
  field "x" {}
}`,
		"Unexpected attribute": `
event "A" {
  priority = 1
}`,
		"Duplicate field": `
event "A" {
  field "x" {
    type = string
  }
  field "x" {
    type = int
  }
}`,
		"Duplicate event": `
event "A" {}
event "A" {}
`,
		"Empty event name": `event "" {}`,
	}

	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src), "bad.hcl")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "bad.hcl")
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b", "signup.hcl"), testSignUpSchema)
	writeFile(t, filepath.Join(dir, "a.hcl"), `
event "USER_ACTIVATED" {
  field "user_id" {
    type = uuid
  }
}
`)
	writeFile(t, filepath.Join(dir, "notes.txt"), `not a schema`)
	single := filepath.Join(t.TempDir(), "single.schema")
	writeFile(t, single, `event "SINGLE" {}`)

	defs, err := Load(context.Background(), dir, single)
	require.NoError(t, err)
	require.Len(t, defs, 3)
	assert.Equal(t, dispatch.EventName("USER_ACTIVATED"), defs[0].Event)
	assert.Equal(t, dispatch.EventName("USER_SIGNED_UP"), defs[1].Event)
	assert.Equal(t, dispatch.EventName("SINGLE"), defs[2].Event, "Explicit file paths are loaded regardless of extension")
	assert.Equal(t, 0, defs[2].Schema.Len())
}

func TestLoad_DuplicateAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.hcl"), testSignUpSchema)
	writeFile(t, filepath.Join(dir, "b.hcl"), testSignUpSchema)
	_, err := Load(context.Background(), dir)
	assert.ErrorIs(t, err, ErrDuplicateEvent)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestLoad_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.hcl"), testSignUpSchema)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Load(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestApply(t *testing.T) {
	defs, err := Parse([]byte(testSignUpSchema), "signup.hcl")
	require.NoError(t, err)

	reg := dispatch.NewRegistry()
	require.NoError(t, Apply(reg, defs))
	assert.NoError(t, reg.Validate("USER_SIGNED_UP", map[string]any{
		"user_id":    uuid.NewString(),
		"created_at": time.Now().Format(time.RFC3339),
	}))
	assert.ErrorIs(t, reg.Validate("USER_SIGNED_UP", map[string]any{"user_id": "not-a-uuid"}), dispatch.ErrSchemaValidation)

	err = Apply(reg, defs)
	assert.ErrorIs(t, err, dispatch.ErrDuplicateSchema)
	assert.Contains(t, err.Error(), "signup.hcl")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
