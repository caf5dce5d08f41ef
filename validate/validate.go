// Package validate checks decoded request bodies and identifiers before they
// reach a core package.
package validate

import (
	"errors"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/google/uuid"
)

var ErrInvalidID = errors.New("ID is not in its proper form")

var (
	v     *validator.Validate
	trans ut.Translator
)

func init() {
	v = validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	trans, _ = ut.New(en.New(), en.New()).GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	_ = v.RegisterValidation("money", money)
	_ = v.RegisterTranslation("money", trans,
		func(ut ut.Translator) error {
			return ut.Add("money", "{0} must be an amount with at most two decimals", true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T("money", fe.Field())
			return t
		},
	)
}

// money accepts non-negative amounts that fit in whole cents.
func money(fl validator.FieldLevel) bool {
	f := fl.Field().Float()
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	return math.Abs(f*100-math.Round(f*100)) < 1e-6
}

// Check validates val and reports the first failing field in words a client
// can show.
func Check(val any) error {
	err := v.Struct(val)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	if len(verrs) == 0 {
		return nil
	}
	return errors.New(verrs[0].Translate(trans))
}

func GenerateID() string {
	return uuid.NewString()
}

func CheckID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidID
	}
	return nil
}
