package journey

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jrsteele09/possession-claims-frontend/sessions"
)

// Result is the outcome of a step submission.
type Result struct {
	// Values are the submitted answers, returned so an invalid form can be re-rendered as typed.
	Values map[string]string
	// Errors holds one message per invalid field; empty when the submission was accepted.
	Errors map[string]string
	// Next is the route to redirect to after an accepted submission.
	Next string
}

func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// FirstError returns the message for the first invalid field in step order.
func (r Result) FirstError(step *Step) string {
	for _, f := range step.Fields {
		if msg, ok := r.Errors[f.Field]; ok {
			return msg
		}
	}
	return ""
}

type Wizard struct {
	steps    []*Step
	byPath   map[string]*Step
	validate *validator.Validate
}

// NewWizard indexes steps by path and rejects unknown rule names or duplicate paths.
func NewWizard(steps []*Step) (*Wizard, error) {
	w := &Wizard{
		steps:    steps,
		byPath:   make(map[string]*Step, len(steps)),
		validate: validator.New(),
	}
	for _, s := range steps {
		if _, dup := w.byPath[s.Path]; dup {
			return nil, fmt.Errorf("[journey NewWizard] duplicate step path %q", s.Path)
		}
		if err := checkRules(s.Fields); err != nil {
			return nil, fmt.Errorf("[journey NewWizard] step %q: %w", s.Name, err)
		}
		w.byPath[s.Path] = s
	}
	return w, nil
}

func (w *Wizard) Steps() []*Step {
	return w.steps
}

func (w *Wizard) Lookup(path string) (*Step, bool) {
	s, ok := w.byPath[path]
	return s, ok
}

// Answers returns the stored answers for the step so a revisited page is pre-filled.
func (w *Wizard) Answers(step *Step, state sessions.StepState) map[string]string {
	return state.StepData(step.Name)
}

// AllAnswers collects the stored answers of every step that has any, keyed by step name.
func (w *Wizard) AllAnswers(state sessions.StepState) map[string]map[string]string {
	all := make(map[string]map[string]string)
	for _, s := range w.steps {
		if data := state.StepData(s.Name); len(data) > 0 {
			all[s.Name] = data
		}
	}
	return all
}

// Submit validates the form against the step's rules. Only an accepted submission touches the
// session: answers are stored under the step name and the step is marked complete.
func (w *Wizard) Submit(step *Step, state sessions.StepState, form url.Values) Result {
	values := make(map[string]string, len(step.Fields))
	for _, f := range step.Fields {
		values[f.Field] = strings.TrimSpace(form.Get(f.Field))
	}

	if errs := validateFields(w.validate, step.Fields, values); errs != nil {
		return Result{Values: values, Errors: errs}
	}

	state.SetStepData(step.Name, values)
	state.CompleteStep(step.Name)
	return Result{Values: values, Next: step.next(values)}
}
