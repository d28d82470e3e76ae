package auth

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"plaza/cmd/identity/ids"
	"plaza/cmd/security/password"
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("ulid", func(fl validator.FieldLevel) bool {
		return ids.Valid(fl.Field().String())
	})
	return v
}

// Validate checks v against its struct tags and returns a *ValidationError
// listing every failed field.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.add(fieldPath(fe), fe.Tag(), fieldMessage(fe))
	}
	return out
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s items", fe.Param())
		}
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at most %s items", fe.Param())
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "username":
		return "may contain only letters, digits and underscores"
	case "oneof":
		return "must be one of " + fe.Param()
	case "ulid":
		return "must be a valid id"
	default:
		return "is invalid"
	}
}

// checkPassword appends every policy violation of pw under field.
func checkPassword(ve *ValidationError, field, pw string) {
	for _, v := range password.CheckPolicy(pw) {
		ve.add(field, "password."+v.Rule, v.Message)
	}
}

// merge folds a Validate result into ve. Non-validation errors are returned.
func merge(ve *ValidationError, err error) error {
	if err == nil {
		return nil
	}
	other, ok := AsValidation(err)
	if !ok {
		return err
	}
	ve.Fields = append(ve.Fields, other.Fields...)
	return nil
}

func trim(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
