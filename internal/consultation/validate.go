package consultation

import (
	"errors"
	"fmt"
	"html"
	"reflect"
	"sort"
	"strings"

	"github.com/arcano/arcano-consultas/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

// inputGuard strips markup from user text and enforces the input rules.
type inputGuard struct {
	validate *validator.Validate
	policy   *bluemonday.Policy
}

func newInputGuard() *inputGuard {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return &inputGuard{validate: v, policy: bluemonday.StrictPolicy()}
}

// clean removes every tag and keeps plain text, unescaping the entities the
// strict policy produces so prompts see the original characters.
func (g *inputGuard) clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(g.policy.Sanitize(s)))
}

func (g *inputGuard) cleanAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, g.clean(s))
	}
	return out
}

func (g *inputGuard) check(in any) error {
	err := g.validate.Struct(in)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return domain.NewValidationError(err.Error())
	}

	msgs := make([]string, 0, len(errs))
	for _, fe := range errs {
		msgs = append(msgs, fmt.Sprintf("%s %s", fieldName(fe), validationMessage(fe)))
	}
	sort.Strings(msgs)
	return domain.NewValidationError(strings.Join(msgs, "; "))
}

// fieldName drops the struct prefix: "TarotInput.questions[0]" -> "questions[0]".
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at least %s items", fe.Param())
		}
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at most %s items", fe.Param())
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "datetime":
		return fmt.Sprintf("must match layout %s", fe.Param())
	case "email":
		return "must be a valid email"
	}
	return "is invalid"
}
