package slots

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wolfman30/slotbook/pkg/apperr"
)

var (
	phonePattern    = regexp.MustCompile(`^\+?[1-9][0-9]{6,14}$`)
	phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("phone_number", func(fl validator.FieldLevel) bool {
		return ValidPhone(fl.Field().String())
	})
	return v
}

// ValidPhone reports whether raw looks like a dialable phone number once
// common separators are stripped.
func ValidPhone(raw string) bool {
	return phonePattern.MatchString(phoneSeparators.Replace(strings.TrimSpace(raw)))
}

// validateStruct runs tag validation and converts failures to InvalidInput.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Wrap(apperr.KindInvalidInput, "Invalid request.", err)
	}
	return apperr.New(apperr.KindInvalidInput, describeFieldError(verrs[0]))
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required.", fe.Field())
	case "phone_number":
		return "Invalid phone number format."
	case "min", "max":
		return fmt.Sprintf("%s is out of range.", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid.", fe.Field())
	}
}
