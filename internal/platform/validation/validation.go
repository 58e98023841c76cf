package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"notebook-lending/internal/platform/apperr"
)

var (
	hhmmRe       = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
	nationalIDRe = regexp.MustCompile(`^\d{3}\.?\d{3}\.?\d{3}-?\d{2}$`)
	postalCodeRe = regexp.MustCompile(`^\d{5}-?\d{3}$`)
)

// Register adds the custom tags used in request DTOs to gin's validator.
func Register() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator engine is not go-playground/validator")
	}
	return RegisterRules(v)
}

func RegisterRules(v *validator.Validate) error {
	// エラーには JSON のフィールド名を出す
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("isodate", isISODate); err != nil {
		return err
	}
	if err := v.RegisterValidation("hhmm", isHHMM); err != nil {
		return err
	}
	if err := v.RegisterValidation("national_id", isNationalID); err != nil {
		return err
	}
	if err := v.RegisterValidation("postal_code", isPostalCode); err != nil {
		return err
	}
	return nil
}

// isISODate - YYYY-MM-DD かつ実在する日付
func isISODate(fl validator.FieldLevel) bool {
	_, err := time.Parse(time.DateOnly, fl.Field().String())
	return err == nil
}

func isHHMM(fl validator.FieldLevel) bool {
	return hhmmRe.MatchString(fl.Field().String())
}

// isNationalID - CPF, with or without punctuation
func isNationalID(fl validator.FieldLevel) bool {
	return nationalIDRe.MatchString(fl.Field().String())
}

func isPostalCode(fl validator.FieldLevel) bool {
	return postalCodeRe.MatchString(fl.Field().String())
}

// NormalizeNationalID strips punctuation so the same document cannot be
// stored twice in different formats.
func NormalizeNationalID(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// BindError converts a gin binding failure into INVALID_ARGUMENT, naming the
// first offending field when the validator reports one.
func BindError(err error) error {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		field := fe.Field()
		return apperr.InvalidField(field, fmt.Sprintf("%s failed %q validation", field, fe.Tag()))
	}
	return apperr.InvalidArgument("invalid json or missing required fields")
}
