package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/HendryAvila/openproject-mcp/internal/errs"
)

// ParseCustom decodes a raw filter array of the form
// [{"<field>":{"operator":"<op>","values":[...]}}, ...] into custom
// criteria. Only the shape is checked: each element must be an object with
// exactly one key, an operator string, and a values array of scalars.
// Numbers keep their literal spelling and booleans become "t" or "f".
//
// An empty or whitespace-only raw string yields no criteria. Problems are
// reported against the custom_filters parameter.
func ParseCustom(raw string) ([]Criterion, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var elems []json.RawMessage
	if err := dec.Decode(&elems); err != nil {
		return nil, customErr(fmt.Sprintf("not a JSON array: %v", err), "JSON array of filter objects", truncate(raw))
	}
	if elems == nil {
		return nil, customErr("not a JSON array: null", "JSON array of filter objects", truncate(raw))
	}
	if dec.More() {
		return nil, customErr("trailing data after the array", "a single JSON array", truncate(raw))
	}

	out := make([]Criterion, 0, len(elems))
	for i, el := range elems {
		c, err := parseElement(el)
		if err != nil {
			return nil, customErr(fmt.Sprintf("element %d: %v", i, err),
				`{"<field>":{"operator":"<op>","values":[...]}}`, truncate(string(el)))
		}
		out = append(out, c)
	}
	return out, nil
}

func parseElement(el json.RawMessage) (Criterion, error) {
	var obj map[string]json.RawMessage
	if err := decodeStrict(el, &obj); err != nil || obj == nil {
		return Criterion{}, fmt.Errorf("must be an object")
	}
	if len(obj) != 1 {
		return Criterion{}, fmt.Errorf("must have exactly one field key, got %d", len(obj))
	}

	var field string
	var body json.RawMessage
	for k, v := range obj {
		field, body = k, v
	}
	if strings.TrimSpace(field) == "" {
		return Criterion{}, fmt.Errorf("field name is empty")
	}

	var clause struct {
		Operator *string          `json:"operator"`
		Values   []json.RawMessage `json:"values"`
	}
	if err := decodeStrict(body, &clause); err != nil {
		return Criterion{}, fmt.Errorf("field %q: clause must be an object with operator and values", field)
	}
	if clause.Operator == nil || *clause.Operator == "" {
		return Criterion{}, fmt.Errorf("field %q: operator is required", field)
	}

	values := make([]string, 0, len(clause.Values))
	for _, raw := range clause.Values {
		v, err := scalar(raw)
		if err != nil {
			return Criterion{}, fmt.Errorf("field %q: %v", field, err)
		}
		values = append(values, v)
	}

	return Criterion{Field: field, Operator: Operator(*clause.Operator), Values: values, Custom: true}, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func scalar(raw json.RawMessage) (string, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		if x {
			return "t", nil
		}
		return "f", nil
	default:
		return "", fmt.Errorf("values must be strings, numbers or booleans")
	}
}

func customErr(msg, expected, actual string) error {
	v := &errs.ValidationError{}
	v.Add("custom_filters", msg, expected, actual)
	return v
}

func truncate(s string) string {
	const limit = 120
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
