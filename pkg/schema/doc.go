// Package schema types the values stored in flow variables.
//
// Variables carry a declared VarType (STRING, NUMBER, BOOLEAN, OBJECT,
// ARRAY). Storage adapters may hand OBJECT and ARRAY values back as JSON text;
// Decode turns them into maps and slices again so paths like
// "order.items.0.sku" can be traversed. Infer picks the type of a value
// produced at runtime, and Coerce converts operator-supplied text into the
// declared type.
//
//	v := domain.Variable{Name: "cart", Type: domain.VarArray, Value: `[{"sku":"A1"}]`}
//	items := schema.Decode(v) // []any{map[string]any{"sku": "A1"}}
package schema
