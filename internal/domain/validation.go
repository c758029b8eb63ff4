package domain

import "strings"

// FieldError pins a validation failure to the definition field that
// caused it, using the JSON path of the field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every failure of one definition so the API
// can report them all at once instead of stopping at the first.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "invalid job definition: " + strings.Join(parts, "; ")
}

// Unwrap lets callers match with errors.Is(err, ErrJobInvalid).
func (v ValidationErrors) Unwrap() error { return ErrJobInvalid }
