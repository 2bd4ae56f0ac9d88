package footprint

import (
	"fmt"
	"strings"

	"github.com/ahmadzakiakmal/carbon-ledger/apperr"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validator exposes the shared validator so other packages validate their
// documents with the same instance.
func Validator() *validator.Validate {
	return validate
}

// Validate checks a document: required fields, at least one extension and
// a well-formed chain in every extension.
func Validate(doc *ProductFootprint) error {
	if doc == nil {
		return apperr.Validation("INVALID_FOOTPRINT", "Footprint document is missing", nil)
	}
	if err := ValidateStruct("INVALID_FOOTPRINT", "Footprint document is malformed", doc); err != nil {
		return err
	}
	for _, ext := range doc.Extensions {
		if err := VerifyChain(ext.Data.Tces); err != nil {
			return err
		}
	}
	return nil
}

// ValidateStruct runs struct tags validation and flattens the failures into
// a single validation error.
func ValidateStruct(code, message string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Validation(code, message, err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
	}
	return apperr.Validation(code, message, nil).WithDetail("%s", strings.Join(parts, "; "))
}
