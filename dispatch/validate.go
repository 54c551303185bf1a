package dispatch

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Validate checks the payload against all fields in the [Schema].
// Every failing field is reported in the returned [*ValidationError], which has no event name set.
// Fields in the payload that aren't declared in the [Schema] are ignored.
func (s Schema) Validate(payload Payload) error {
	values, err := payloadValues(payload)
	if err != nil {
		return &ValidationError{Fields: []FieldError{{Reason: err.Error()}}}
	}
	var failed []FieldError
	for _, f := range s.fields {
		val, present := values[f.Name]
		if !present || isMissingValue(val) {
			if !f.Optional {
				failed = append(failed, FieldError{Field: f.Name, Reason: "required field is missing"})
			}
			continue
		}
		if err := f.Type.check(val); err != nil {
			failed = append(failed, FieldError{Field: f.Name, Reason: err.Error()})
		}
	}
	if len(failed) > 0 {
		return &ValidationError{Fields: failed}
	}
	return nil
}

// payloadValues flattens a map or struct payload into field values keyed by name.
func payloadValues(payload Payload) (map[string]any, error) {
	if payload == nil {
		return nil, fmt.Errorf("payload is nil")
	}
	if m, ok := payload.(map[string]any); ok {
		return m, nil
	}
	rv := reflect.ValueOf(payload)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("payload is a nil %T", payload)
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		values := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			values[iter.Key().String()] = iter.Value().Interface()
		}
		return values, nil
	case reflect.Struct:
		fields := payloadStructFields(rv.Type())
		values := make(map[string]any, len(fields))
		for _, sf := range fields {
			fv, err := rv.FieldByIndexErr(sf.field.Index)
			if err != nil {
				// Promoted through a nil embedded pointer, so it's treated as missing.
				continue
			}
			values[sf.name] = fv.Interface()
		}
		return values, nil
	}
	return nil, fmt.Errorf("payload must be a struct or a map with string keys, got %T", payload)
}

// isMissingValue reports whether val is nil, or an unset UUID or timestamp.
// Struct payloads can't leave a field out, so [uuid.Nil] and the zero [time.Time] stand in for absence.
func isMissingValue(val any) bool {
	if val == nil {
		return true
	}
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return true
		}
		return isMissingValue(rv.Elem().Interface())
	case reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	switch v := val.(type) {
	case uuid.UUID:
		return v == uuid.Nil
	case time.Time:
		return v.IsZero()
	}
	return false
}

func (t FieldType) check(val any) error {
	rv := reflect.ValueOf(val)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return fmt.Errorf("expected %s, but got nil", t)
		}
		rv = rv.Elem()
	}
	val = rv.Interface()
	_, isNumber := val.(json.Number)

	switch t {
	case TypeAny:
		return nil
	case TypeString:
		if rv.Kind() == reflect.String && !isNumber {
			return nil
		}
	case TypeBool:
		if rv.Kind() == reflect.Bool {
			return nil
		}
	case TypeInt:
		if isNumber {
			num := val.(json.Number)
			if _, err := num.Int64(); err != nil {
				return fmt.Errorf("expected %s, but got number %s", t, num)
			}
			return nil
		}
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return nil
		case reflect.Float32, reflect.Float64:
			f := rv.Float()
			if f == math.Trunc(f) && !math.IsInf(f, 0) {
				return nil
			}
			return fmt.Errorf("expected %s, but got fractional number %v", t, f)
		}
	case TypeFloat:
		if isNumber {
			num := val.(json.Number)
			if _, err := num.Float64(); err != nil {
				return fmt.Errorf("expected %s, but got number %s", t, num)
			}
			return nil
		}
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			return nil
		}
	case TypeUUID:
		switch v := val.(type) {
		case uuid.UUID:
			return nil
		case string:
			if _, err := uuid.Parse(v); err != nil {
				return fmt.Errorf("invalid UUID '%s': %v", v, err)
			}
			return nil
		}
	case TypeTimestamp:
		switch v := val.(type) {
		case time.Time:
			return nil
		case string:
			if _, err := ParseTimestamp(v); err != nil {
				return err
			}
			return nil
		}
	default:
		return fmt.Errorf("unknown field type %s", t)
	}
	return fmt.Errorf("expected %s, but got %T", t, val)
}

// timestampLayouts are tried in order by [ParseTimestamp].
// The last one has no zone, like Python's isoformat of a naive datetime, and is read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// ParseTimestamp parses an RFC 3339 timestamp, or an ISO 8601 date and time without a zone offset, which is assumed to be UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp '%s': expected RFC 3339 or ISO 8601", s)
}
