package api

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

// contentKindPattern accepts lower-case slugs such as "html-content" or
// "shop.product_list". Kinds without a registered accessor are valid.
var contentKindPattern = regexp.MustCompile(`^[a-z0-9]+(?:[-_.][a-z0-9]+)*$`)

// newValidator panics when a rule cannot be registered; that is a programming
// error caught on the first handler construction.
func newValidator() *validator.Validate {
	v := validator.New()
	mustRegister(v, "content_kind", validateContentKind)
	mustRegister(v, "option_type", validateOptionType)
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

func validateContentKind(fl validator.FieldLevel) bool {
	kind := fl.Field().String()
	return len(kind) <= 100 && contentKindPattern.MatchString(kind)
}

func validateOptionType(fl validator.FieldLevel) bool {
	switch simplecms.OptionType(fl.Field().String()) {
	case simplecms.OptionTypeText, simplecms.OptionTypeInteger, simplecms.OptionTypeFloat,
		simplecms.OptionTypeDateTime, simplecms.OptionTypeBoolean, simplecms.OptionTypeCustom:
		return true
	}
	return false
}

// validationMessage flattens validator errors into one line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}
