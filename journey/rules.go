package journey

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Rule names understood by the registry.
const (
	RuleRequired = "required"
	RuleYesNo    = "yesNo"
	RuleEmail    = "email"
	RuleText     = "text"
	RuleConfirm  = "confirm"
)

type ruleSpec struct {
	tag     string
	message string
}

// rules is the fixed set of validation rules steps may reference. Steps name a rule instead of
// carrying validation code so every field is checked the same way.
var rules = map[string]ruleSpec{
	RuleRequired: {tag: "required", message: "Enter a value"},
	RuleYesNo:    {tag: "required,oneof=yes no", message: "Please select an option"},
	RuleEmail:    {tag: "required,email", message: "Enter an email address in the correct format, like name@example.com"},
	RuleText:     {tag: "required,max=500", message: "Enter details using 500 characters or fewer"},
	RuleConfirm:  {tag: "required,eq=yes", message: "Confirm the details are correct to continue"},
}

// FieldRule binds a form field to a named rule. Message replaces the rule's default message.
type FieldRule struct {
	Field   string
	Rule    string
	Message string
}

func (f FieldRule) message() string {
	if f.Message != "" {
		return f.Message
	}
	return rules[f.Rule].message
}

func checkRules(fields []FieldRule) error {
	for _, f := range fields {
		if _, ok := rules[f.Rule]; !ok {
			return fmt.Errorf("field %q uses unknown rule %q", f.Field, f.Rule)
		}
	}
	return nil
}

// validateFields returns one message per invalid field. A nil map means the form is valid.
func validateFields(validate *validator.Validate, fields []FieldRule, values map[string]string) map[string]string {
	var errs map[string]string
	for _, f := range fields {
		if err := validate.Var(strings.TrimSpace(values[f.Field]), rules[f.Rule].tag); err != nil {
			if errs == nil {
				errs = make(map[string]string)
			}
			errs[f.Field] = f.message()
		}
	}
	return errs
}
