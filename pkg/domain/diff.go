package domain

import (
	"reflect"
)

// DiffVariables returns the variables that were added or changed between
// before and after. Deleted names are present with a nil value.
// It returns nil when nothing changed so the field can be omitted.
func DiffVariables(before, after map[string]any) map[string]any {
	delta := make(map[string]any)

	for k, newVal := range after {
		oldVal, exists := before[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}

	for k := range before {
		if _, exists := after[k]; !exists {
			delta[k] = nil
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}
