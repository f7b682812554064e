package tool

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// SchemaFor generates a JSON Schema object from the struct type T.
//
// Supported struct tags:
//
//	json:"name"      property name (fields tagged "-" are skipped)
//	desc:"text"      description shown to the model
//	required:"true"  mark the field as required
//	enum:"a,b,c"     allowed values
//	default:"v"      default value
//	min:"0"          minimum (numbers) or minItems (arrays)
//	max:"100"        maximum (numbers) or maxItems (arrays)
func SchemaFor[T any]() (json.RawMessage, error) {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return nil, fmt.Errorf("%w: schema type must be a struct", ErrInvalidTool)
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: schema type %s is not a struct", ErrInvalidTool, t)
	}
	node, err := objectSchema(t)
	if err != nil {
		return nil, err
	}
	return json.Marshal(node)
}

// MustSchemaFor is like SchemaFor but panics on error.
func MustSchemaFor[T any]() json.RawMessage {
	s, err := SchemaFor[T]()
	if err != nil {
		panic(err)
	}
	return s
}

func objectSchema(t reflect.Type) (map[string]any, error) {
	props := make(map[string]any)
	var required []string

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name := strings.Split(tag, ",")[0]
		if name == "" {
			name = field.Name
		}

		prop, err := fieldSchema(field.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		if err := applyTags(prop, field); err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		props[name] = prop
		if field.Tag.Get("required") == "true" {
			required = append(required, name)
		}
	}

	node := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		node["required"] = required
	}
	return node, nil
}

func fieldSchema(t reflect.Type) (map[string]any, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return map[string]any{"type": "string"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}, nil
	case reflect.Bool:
		return map[string]any{"type": "boolean"}, nil
	case reflect.Slice, reflect.Array:
		items, err := fieldSchema(t.Elem())
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "array", "items": items}, nil
	case reflect.Struct:
		return objectSchema(t)
	case reflect.Map:
		return map[string]any{"type": "object"}, nil
	default:
		return nil, fmt.Errorf("unsupported kind %s", t.Kind())
	}
}

func applyTags(prop map[string]any, field reflect.StructField) error {
	typ, _ := prop["type"].(string)

	if d := field.Tag.Get("desc"); d != "" {
		prop["description"] = d
	}
	if e := field.Tag.Get("enum"); e != "" {
		var values []any
		for _, v := range strings.Split(e, ",") {
			values = append(values, strings.TrimSpace(v))
		}
		prop["enum"] = values
	}
	if d, ok := field.Tag.Lookup("default"); ok {
		v, err := parseTagValue(typ, d)
		if err != nil {
			return fmt.Errorf("default: %w", err)
		}
		prop["default"] = v
	}

	minKey, maxKey := "minimum", "maximum"
	if typ == "array" {
		minKey, maxKey = "minItems", "maxItems"
	}
	for tag, key := range map[string]string{"min": minKey, "max": maxKey} {
		raw, ok := field.Tag.Lookup(tag)
		if !ok {
			continue
		}
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", tag, err)
		}
		prop[key] = n
	}
	return nil
}

func parseTagValue(typ, raw string) (any, error) {
	switch typ {
	case "integer":
		return strconv.ParseInt(raw, 10, 64)
	case "number":
		return strconv.ParseFloat(raw, 64)
	case "boolean":
		return strconv.ParseBool(raw)
	case "array":
		var out []any
		for _, v := range strings.Split(raw, ",") {
			if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				out = append(out, n)
			} else {
				out = append(out, strings.TrimSpace(v))
			}
		}
		return out, nil
	default:
		return raw, nil
	}
}
