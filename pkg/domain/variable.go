package domain

// VarType is the declared type of a variable value.
type VarType string

const (
	VarString  VarType = "STRING"
	VarNumber  VarType = "NUMBER"
	VarBoolean VarType = "BOOLEAN"
	VarObject  VarType = "OBJECT"
	VarArray   VarType = "ARRAY"
)

// Variable is a named value in bot or session scope.
// Value holds decoded data (string, float64, bool, map[string]any, []any);
// adapters may hand back OBJECT and ARRAY values as JSON text.
type Variable struct {
	Name  string  `json:"name"`
	Value any     `json:"value"`
	Type  VarType `json:"type"`
}
