package validator

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	playground "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResult collects the problems found on a payload.
type ValidationResult struct {
	IsValid bool              `json:"is_valid"`
	Errors  []ValidationError `json:"errors"`
}

// Error joins every message so a result can travel as an error.
func (r ValidationResult) Error() string {
	messages := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		messages[i] = e.Message
	}
	return strings.Join(messages, "; ")
}

var (
	once     sync.Once
	validate *playground.Validate
	trans    ut.Translator
)

func instance() (*playground.Validate, ut.Translator) {
	once.Do(func() {
		locale := en.New()
		uni := ut.New(locale, locale)
		trans, _ = uni.GetTranslator("en")

		validate = playground.New(playground.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "mapstructure"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return fld.Name
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})
		_ = en_translations.RegisterDefaultTranslations(validate, trans)
	})
	return validate, trans
}

// Check validates a struct against its `validate` tags.
func Check(structure any) ValidationResult {
	v, translator := instance()
	result := ValidationResult{IsValid: true, Errors: []ValidationError{}}

	err := v.Struct(structure)
	if err == nil {
		return result
	}
	result.IsValid = false

	var fieldErrs playground.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		result.Errors = append(result.Errors, ValidationError{Message: err.Error()})
		return result
	}
	for _, fe := range fieldErrs {
		result.Errors = append(result.Errors, ValidationError{
			Field:   fieldPath(fe.Namespace()),
			Message: fe.Translate(translator),
		})
	}
	return result
}

// Validate returns nil for valid structs and the ValidationResult otherwise.
func Validate(structure any) error {
	result := Check(structure)
	if result.IsValid {
		return nil
	}
	return result
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}
