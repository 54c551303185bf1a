package dispatch

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldType is the expected type of a single payload field.
type FieldType int

const (
	TypeAny       FieldType = iota // TypeAny accepts any non-nil value.
	TypeString                     // TypeString accepts string kinds.
	TypeInt                        // TypeInt accepts integer kinds, and floats without a fractional part.
	TypeFloat                      // TypeFloat accepts any numeric kind.
	TypeBool                       // TypeBool accepts bool kinds.
	TypeUUID                       // TypeUUID accepts a uuid.UUID, or a string that parses as one.
	TypeTimestamp                  // TypeTimestamp accepts a time.Time, or an RFC 3339 string.
)

var fieldTypeNames = map[FieldType]string{
	TypeAny:       "any",
	TypeString:    "string",
	TypeInt:       "int",
	TypeFloat:     "float",
	TypeBool:      "bool",
	TypeUUID:      "uuid",
	TypeTimestamp: "timestamp",
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// ParseFieldType interprets a type name as a [FieldType].
// A few common aliases are accepted, like "integer", "number", and "datetime".
func ParseFieldType(name string) (FieldType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "any":
		return TypeAny, nil
	case "string":
		return TypeString, nil
	case "int", "integer":
		return TypeInt, nil
	case "float", "number":
		return TypeFloat, nil
	case "bool", "boolean":
		return TypeBool, nil
	case "uuid":
		return TypeUUID, nil
	case "timestamp", "datetime", "time":
		return TypeTimestamp, nil
	}
	return TypeAny, fmt.Errorf("%w: unknown field type '%s'", ErrInvalidSchema, name)
}

// Field is a named, typed entry in a [Schema].
type Field struct {
	Name     string
	Type     FieldType
	Optional bool // Optional fields may be missing or nil, but are still type checked when present.
}

// Required creates a [Field] that must be present in every payload.
func Required(name string, typ FieldType) Field {
	return Field{Name: name, Type: typ}
}

// Optional creates a [Field] that may be omitted from a payload.
func Optional(name string, typ FieldType) Field {
	return Field{Name: name, Type: typ, Optional: true}
}

// Schema describes the expected shape of an event payload.
// The zero value is an empty schema that accepts any map or struct payload.
type Schema struct {
	fields []Field
}

// NewSchema creates a [Schema] from the given fields.
// Field names must be non-empty and unique.
func NewSchema(fields ...Field) (Schema, error) {
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		if len(strings.TrimSpace(f.Name)) == 0 {
			return Schema{}, fmt.Errorf("%w: field %d has no name", ErrInvalidSchema, i)
		}
		if seen[f.Name] {
			return Schema{}, fmt.Errorf("%w: duplicate field '%s'", ErrInvalidSchema, f.Name)
		}
		if _, ok := fieldTypeNames[f.Type]; !ok {
			return Schema{}, fmt.Errorf("%w: field '%s' has unknown type %d", ErrInvalidSchema, f.Name, int(f.Type))
		}
		seen[f.Name] = true
	}
	return Schema{fields: append([]Field(nil), fields...)}, nil
}

// MustSchema is the same as [NewSchema], but panics if the schema is invalid.
// This is intended for package level schema declarations.
func MustSchema(fields ...Field) Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns a copy of the fields in this [Schema], in declaration order.
func (s Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Len returns the number of fields in the [Schema].
func (s Schema) Len() int {
	return len(s.fields)
}

var (
	uuidType = reflect.TypeFor[uuid.UUID]()
	timeType = reflect.TypeFor[time.Time]()
)

// SchemaOf derives a [Schema] from the exported fields of struct type T, which is how a payload type is usually declared.
//
// Field names are taken from the json tag if present, and fields tagged with "-" are skipped.
// Pointer fields and fields tagged with omitempty are optional.
// A [uuid.UUID] field maps to [TypeUUID], a [time.Time] field maps to [TypeTimestamp], and other types map by kind.
// Types without a more specific mapping are [TypeAny].
func SchemaOf[T any]() (Schema, error) {
	typ := reflect.TypeFor[T]()
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return Schema{}, fmt.Errorf("%w: %s is not a struct type", ErrInvalidSchema, typ)
	}
	var fields []Field
	for _, sf := range payloadStructFields(typ) {
		ftype, optional := impliedFieldType(sf.field.Type)
		fields = append(fields, Field{
			Name:     sf.name,
			Type:     ftype,
			Optional: optional || sf.omitEmpty,
		})
	}
	return NewSchema(fields...)
}

func impliedFieldType(typ reflect.Type) (FieldType, bool) {
	optional := false
	for typ.Kind() == reflect.Pointer {
		optional = true
		typ = typ.Elem()
	}
	switch typ {
	case uuidType:
		return TypeUUID, optional
	case timeType:
		return TypeTimestamp, optional
	}
	switch typ.Kind() {
	case reflect.String:
		return TypeString, optional
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInt, optional
	case reflect.Float32, reflect.Float64:
		return TypeFloat, optional
	case reflect.Bool:
		return TypeBool, optional
	case reflect.Map, reflect.Slice, reflect.Interface:
		return TypeAny, true
	}
	return TypeAny, optional
}

type structField struct {
	name      string
	omitEmpty bool
	field     reflect.StructField
}

// payloadStructFields lists the fields of a struct type that take part in validation, including promoted fields.
func payloadStructFields(typ reflect.Type) []structField {
	var (
		fields []structField
		hidden [][]int // Embedded structs that are named by a tag, or skipped, don't promote their fields.
	)
	for _, f := range reflect.VisibleFields(typ) {
		if isPromotedFrom(hidden, f.Index) {
			continue
		}
		tag, hasTag := f.Tag.Lookup("json")
		if tag == "-" {
			hidden = append(hidden, f.Index)
			continue
		}
		if f.Anonymous && isStructType(f.Type) {
			if !hasTag {
				// Promoted fields are listed by VisibleFields.
				continue
			}
			hidden = append(hidden, f.Index)
		}
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if len(name) == 0 {
			name = f.Name
		}
		fields = append(fields, structField{
			name:      name,
			omitEmpty: strings.Contains(opts, "omitempty"),
			field:     f,
		})
	}
	return fields
}

func isStructType(typ reflect.Type) bool {
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	return typ.Kind() == reflect.Struct
}

func isPromotedFrom(parents [][]int, index []int) bool {
	for _, parent := range parents {
		if len(index) > len(parent) && slices.Equal(parent, index[:len(parent)]) {
			return true
		}
	}
	return false
}
