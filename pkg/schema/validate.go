package schema

import "github.com/aretw0/convoflow/pkg/domain"

// Validate checks each variable against its declared type after decoding,
// collecting every failure.
func Validate(vars []domain.Variable) error {
	var errs []error
	for _, v := range vars {
		if err := For(v.Type).Validate(Decode(v)); err != nil {
			errs = append(errs, &ValidationError{Key: v.Name, Reason: err.Error(), Value: v.Value})
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &AggregateError{Errors: errs}
}
