package util

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"startup-spark/internal/errs"
)

var validate = validator.New()

// ValidateStruct runs the validate tags on s. Field failures come back as
// *errs.ValidationError.
func ValidateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &errs.ValidationError{}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, errs.FieldError{
			Field: fe.StructNamespace(),
			Tag:   fe.Tag(),
			Param: fe.Param(),
		})
	}
	return out
}
