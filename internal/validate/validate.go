// Package validate wraps a shared go-playground validator configured with
// English messages, json tag names and the custom tags used by tool
// arguments. Struct reports every violation at once as an
// *errs.ValidationError.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/HendryAvila/openproject-mcp/internal/errs"
)

// DateLayout is the calendar date format accepted by the isodate tag.
const DateLayout = "2006-01-02"

// Service holds the validator and its translator.
type Service struct {
	Validator  *validator.Validate
	Translator ut.Translator
}

var (
	once sync.Once
	svc  *Service
)

// Get returns the shared Service, building it on first use.
func Get() *Service {
	once.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})

		_ = en_translations.RegisterDefaultTranslations(v, trans)
		_ = v.RegisterValidation("isodate", isoDate)
		_ = v.RegisterValidation("notblank", notBlank)

		register(v, trans, "min", "{0} must be at least {1}", true)
		register(v, trans, "max", "{0} must be at most {1}", true)
		register(v, trans, "isodate", "{0} must be a calendar date (YYYY-MM-DD)", false)
		register(v, trans, "notblank", "{0} must not be blank", false)

		svc = &Service{Validator: v, Translator: trans}
	})
	return svc
}

func register(v *validator.Validate, trans ut.Translator, tag, text string, withParam bool) {
	_ = v.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, text, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			var msg string
			if withParam {
				msg, _ = ut.T(tag, fe.Field(), fe.Param())
			} else {
				msg, _ = ut.T(tag, fe.Field())
			}
			return msg
		},
	)
}

func isoDate(fl validator.FieldLevel) bool {
	_, err := time.Parse(DateLayout, fl.Field().String())
	return err == nil
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// IsDate reports whether s is a valid YYYY-MM-DD calendar date.
func IsDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// IsEmail reports whether s is a single e-mail address.
func IsEmail(s string) bool {
	return Get().Validator.Var(s, "required,email") == nil
}

// Struct validates v and collects every violation. The result is never
// nil; use its Err method.
func Struct(v any) *errs.ValidationError {
	out := &errs.ValidationError{}
	err := Get().Validator.Struct(v)
	if err == nil {
		return out
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out.Add("", err.Error(), "", "")
		return out
	}
	for _, fe := range verrs {
		out.Add(fieldPath(fe), fe.Translate(Get().Translator), expected(fe), actual(fe.Value()))
	}
	return out
}

// fieldPath drops the top-level struct name from the namespace, keeping
// nested and indexed fields such as "status_ids[1]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func expected(fe validator.FieldError) string {
	p := fe.Param()
	switch fe.Tag() {
	case "required", "notblank":
		return "a value"
	case "isodate":
		return "YYYY-MM-DD"
	case "email":
		return "an e-mail address"
	case "url", "http_url":
		return "an absolute URL"
	case "oneof":
		return "one of: " + strings.Join(strings.Fields(p), ", ")
	case "min", "gte":
		return ">= " + p
	case "max", "lte":
		return "<= " + p
	case "gt":
		return "> " + p
	case "lt":
		return "< " + p
	default:
		if p != "" {
			return fe.Tag() + "=" + p
		}
		return fe.Tag()
	}
}

func actual(v any) string {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ""
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return ""
	}
	return fmt.Sprint(rv.Interface())
}
