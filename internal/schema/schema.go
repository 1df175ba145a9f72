package schema

import (
	"fmt"
	"strings"

	"orderlake/internal/model"
)

// RejectReason classifies why a raw row failed validation.
type RejectReason string

const (
	ReasonMissingField RejectReason = "MISSING_FIELD"
	ReasonEmptyField   RejectReason = "EMPTY_FIELD"
)

// Error reports a raw row that does not satisfy the required-field set.
// Rows failing validation are quarantined, never forwarded to silver.
type Error struct {
	Field  string
	Reason RejectReason
}

func (e *Error) Error() string {
	return fmt.Sprintf("schema: field %s %s", e.Field, strings.ToLower(string(e.Reason)))
}

// Validate checks presence and non-emptiness of every required field.
// Fields are checked in declaration order so the reported failure is
// deterministic for a given row. delivery_time may be absent.
func Validate(raw model.RawOrder) error {
	for _, f := range model.RequiredFields {
		v, ok := raw[f]
		if !ok {
			return &Error{Field: f, Reason: ReasonMissingField}
		}
		if strings.TrimSpace(v) == "" {
			return &Error{Field: f, Reason: ReasonEmptyField}
		}
	}
	return nil
}
