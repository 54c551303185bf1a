// Package schemafile loads event schemas declared in HCL files, so schemas can be added without rebuilding.
//
// A file declares any number of events, each with its fields:
//
//	event "USER_SIGNED_UP" {
//	  description = "A new user completed sign up."
//
//	  field "user_id" {
//	    type = uuid
//	  }
//	  field "created_at" {
//	    type = timestamp
//	  }
//	  field "referrer" {
//	    type     = "string"
//	    optional = true
//	  }
//	}
//
// The type may be written as a bare keyword or a string, and accepts any name understood by [dispatch.ParseFieldType].
package schemafile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/saylorsolutions/eventdemo/dispatch"
	"github.com/saylorsolutions/eventdemo/logging"
	"github.com/zclconf/go-cty/cty"
)

const fileExtension = ".hcl"

var ErrDuplicateEvent = errors.New("event declared more than once")

// Definition is a single event declaration.
type Definition struct {
	Event       dispatch.EventName
	Description string
	Schema      dispatch.Schema
	Source      string // Source is the file the event was declared in.
}

type hclFile struct {
	Events []*hclEvent `hcl:"event,block"`
}

type hclEvent struct {
	Name        string      `hcl:"name,label"`
	Description *string     `hcl:"description,optional"`
	Fields      []*hclField `hcl:"field,block"`
}

type hclField struct {
	Name     string         `hcl:"name,label"`
	Type     hcl.Expression `hcl:"type"`
	Optional *bool          `hcl:"optional,optional"`
}

// Parse reads definitions from HCL source. The filename is only used in error messages.
func Parse(src []byte, filename string) ([]Definition, error) {
	return parse(hclparse.NewParser(), src, filename)
}

// Load reads definitions from each path, which may be a file or a directory.
// Directories are searched recursively for files ending in .hcl, in lexical order.
// An event declared more than once, in the same or different files, is an error wrapping [ErrDuplicateEvent].
func Load(ctx context.Context, paths ...string) ([]Definition, error) {
	logger := logging.FromContext(ctx)
	files, err := findFiles(paths)
	if err != nil {
		return nil, err
	}
	var (
		parser  = hclparse.NewParser()
		defs    []Definition
		sources = map[dispatch.EventName]string{}
	)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logger.Debug("Loading schema file", "path", file)
		src, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema file %s: %w", file, err)
		}
		fileDefs, err := parse(parser, src, file)
		if err != nil {
			return nil, err
		}
		for _, def := range fileDefs {
			if prev, ok := sources[def.Event]; ok {
				return nil, fmt.Errorf("%w: '%s' in %s and %s", ErrDuplicateEvent, def.Event, prev, def.Source)
			}
			sources[def.Event] = def.Source
		}
		defs = append(defs, fileDefs...)
	}
	logger.Debug("Loaded schema files", "files", len(files), "events", len(defs))
	return defs, nil
}

// Apply registers the schema of each definition with reg.
// Every definition is attempted, and all registration errors are returned together.
func Apply(reg *dispatch.Registry, defs []Definition) error {
	var errs []error
	for _, def := range defs {
		if err := reg.RegisterSchema(def.Event, def.Schema); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", def.Source, err))
		}
	}
	return errors.Join(errs...)
}

func parse(parser *hclparse.Parser, src []byte, filename string) ([]Definition, error) {
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse schema file %s: %w", filename, diags)
	}
	var parsed hclFile
	diags = gohcl.DecodeBody(file.Body, nil, &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode schema file %s: %w", filename, diags)
	}

	defs := make([]Definition, 0, len(parsed.Events))
	seen := map[string]bool{}
	for _, event := range parsed.Events {
		if len(strings.TrimSpace(event.Name)) == 0 {
			return nil, fmt.Errorf("%s: %w", filename, dispatch.ErrInvalidEvent)
		}
		if seen[event.Name] {
			return nil, fmt.Errorf("%w: '%s' in %s", ErrDuplicateEvent, event.Name, filename)
		}
		seen[event.Name] = true

		fields := make([]dispatch.Field, 0, len(event.Fields))
		for _, f := range event.Fields {
			typ, diags := fieldType(f.Type)
			if diags.HasErrors() {
				return nil, fmt.Errorf("event '%s' in %s: %w", event.Name, filename, diags)
			}
			fields = append(fields, dispatch.Field{
				Name:     f.Name,
				Type:     typ,
				Optional: f.Optional != nil && *f.Optional,
			})
		}
		schema, err := dispatch.NewSchema(fields...)
		if err != nil {
			return nil, fmt.Errorf("event '%s' in %s: %w", event.Name, filename, err)
		}
		def := Definition{
			Event:  dispatch.EventName(event.Name),
			Schema: schema,
			Source: filename,
		}
		if event.Description != nil {
			def.Description = *event.Description
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// fieldType accepts either a bare keyword like uuid, or a string like "uuid".
func fieldType(expr hcl.Expression) (dispatch.FieldType, hcl.Diagnostics) {
	name := hcl.ExprAsKeyword(expr)
	if len(name) == 0 {
		val, diags := expr.Value(nil)
		if diags.HasErrors() {
			return dispatch.TypeAny, diags
		}
		if val.IsNull() || !val.IsKnown() || !val.Type().Equals(cty.String) {
			return dispatch.TypeAny, hcl.Diagnostics{{
				Severity: hcl.DiagError,
				Summary:  "Invalid field type",
				Detail:   "The 'type' attribute must be a type keyword like uuid, or a string like \"uuid\".",
				Subject:  expr.Range().Ptr(),
			}}
		}
		name = val.AsString()
	}
	typ, err := dispatch.ParseFieldType(name)
	if err != nil {
		return dispatch.TypeAny, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Unsupported field type",
			Detail:   err.Error(),
			Subject:  expr.Range().Ptr(),
		}}
	}
	return typ, nil
}

func findFiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to find schema files in %s: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		var found []string
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(p), fileExtension) {
				found = append(found, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to find schema files in %s: %w", path, err)
		}
		slices.Sort(found)
		files = append(files, found...)
	}
	return files, nil
}
