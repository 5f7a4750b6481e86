package core

import (
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/pkg/errors"
)

var (
	// custom validation tags & texts
	// shallow syntactic check, deep validation is left to the identity provider
	shallowEmailTag  = "shallowemail"
	shallowEmailText = "invalid email address"

	notBlankTag  = "notblank"
	notBlankText = "this field is required"

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
)

// Validator validates request structs and translates failures into a ValidationError.
type Validator struct {
	*validator.Validate
	Translator ut.Translator
}

// NewValidator instantiates the validator for use.
func NewValidator() *Validator {
	english := en.New()
	uni := ut.New(english, english)
	translator, _ := uni.GetTranslator("en")
	validate := validator.New()
	v := &Validator{Validate: validate, Translator: translator}

	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(shallowEmailTag, shallowEmailValidation)
	v.RegisterCustomTranslation(shallowEmailTag, shallowEmailText)

	_ = validate.RegisterValidation(notBlankTag, notBlankValidation)
	v.RegisterCustomTranslation(notBlankTag, notBlankText)

	v.RegisterCustomTranslation(requiredTag, requiredText, true)
	v.RegisterCustomTranslation(requiredWithTag, requiredText, true)
	return v
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func (v *Validator) RegisterCustomTranslation(tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = v.RegisterTranslation(
		tag, v.Translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// Check validates s and converts field failures into a translated *ValidationError.
func (v *Validator) Check(s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return errors.Wrap(err, "validating")
	}
	flds := make([]FieldError, 0, len(vErrs))
	for _, fe := range vErrs {
		flds = append(flds, FieldError{Field: fe.Field(), Error: fe.Translate(v.Translator)})
	}
	return NewValidationError(nil, flds...)
}

// Custom Global Validators

func shallowEmailValidation(fl validator.FieldLevel) bool {
	return IsShallowEmail(fl.Field().String())
}

func notBlankValidation(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// IsShallowEmail only checks that s contains "@" and ".".
func IsShallowEmail(s string) bool {
	return strings.Contains(s, "@") && strings.Contains(s, ".")
}
