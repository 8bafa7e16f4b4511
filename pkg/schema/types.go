package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/convoflow/pkg/domain"
)

// Type defines the contract for variable value validation.
type Type interface {
	// Name returns the declared type name (e.g., "STRING", "ARRAY").
	Name() domain.VarType
	// Validate checks if a decoded value conforms to this type.
	Validate(value any) error
}

type stringType struct{}

func (stringType) Name() domain.VarType { return domain.VarString }

func (stringType) Validate(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	return nil
}

type numberType struct{}

func (numberType) Name() domain.VarType { return domain.VarNumber }

func (numberType) Validate(value any) error {
	switch value.(type) {
	case float64, float32, int, int32, int64, json.Number:
		return nil
	}
	return fmt.Errorf("expected number, got %T", value)
}

type booleanType struct{}

func (booleanType) Name() domain.VarType { return domain.VarBoolean }

func (booleanType) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("expected boolean, got %T", value)
	}
	return nil
}

type objectType struct{}

func (objectType) Name() domain.VarType { return domain.VarObject }

func (objectType) Validate(value any) error {
	if _, ok := value.(map[string]any); !ok {
		return fmt.Errorf("expected object, got %T", value)
	}
	return nil
}

type arrayType struct{}

func (arrayType) Name() domain.VarType { return domain.VarArray }

func (arrayType) Validate(value any) error {
	if _, ok := value.([]any); !ok {
		return fmt.Errorf("expected array, got %T", value)
	}
	return nil
}

// For returns the Type for a declared variable type. Unknown names map to STRING.
func For(t domain.VarType) Type {
	switch t {
	case domain.VarNumber:
		return numberType{}
	case domain.VarBoolean:
		return booleanType{}
	case domain.VarObject:
		return objectType{}
	case domain.VarArray:
		return arrayType{}
	}
	return stringType{}
}

// Infer returns the variable type that best describes value.
func Infer(value any) domain.VarType {
	switch value.(type) {
	case bool:
		return domain.VarBoolean
	case float64, float32, int, int32, int64, json.Number:
		return domain.VarNumber
	case map[string]any:
		return domain.VarObject
	case []any:
		return domain.VarArray
	}
	return domain.VarString
}

// Decode returns the value of v ready for path traversal. OBJECT and ARRAY
// values stored as JSON text are parsed; text that fails to parse is
// returned unchanged.
func Decode(v domain.Variable) any {
	s, ok := v.Value.(string)
	if !ok {
		return v.Value
	}
	switch v.Type {
	case domain.VarObject, domain.VarArray:
		if parsed, ok := ParseJSON(s); ok {
			return parsed
		}
	}
	return s
}

// ParseJSON decodes s when it looks like a JSON object or array.
func ParseJSON(s string) (any, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil, false
	}
	var out any
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, false
	}
	return out, true
}

// Coerce converts value into the declared type t.
// Strings are parsed for NUMBER, BOOLEAN, OBJECT and ARRAY.
func Coerce(value any, t domain.VarType) (any, error) {
	typ := For(t)
	if typ.Validate(value) == nil {
		return value, nil
	}
	s, ok := value.(string)
	if !ok {
		if t == domain.VarString {
			return fmt.Sprint(value), nil
		}
		return nil, &ValidationError{Reason: fmt.Sprintf("cannot convert to %s", t), Value: value}
	}
	switch t {
	case domain.VarNumber:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, &ValidationError{Reason: "not a number", Value: value}
		}
		return f, nil
	case domain.VarBoolean:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return nil, &ValidationError{Reason: "not a boolean", Value: value}
		}
		return b, nil
	case domain.VarObject, domain.VarArray:
		parsed, ok := ParseJSON(s)
		if !ok || typ.Validate(parsed) != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("not a JSON %s", strings.ToLower(string(t))), Value: value}
		}
		return parsed, nil
	}
	return s, nil
}
