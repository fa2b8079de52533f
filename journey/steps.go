package journey

// Step paths.
const (
	PathPage1    = "/steps/page1"
	PathPage2    = "/steps/page2"
	PathPage3Yes = "/steps/page3/yes"
	PathPage3No  = "/steps/page3/no"
	PathPage4    = "/steps/page4"
	PathPage5    = "/steps/page5"
)

// Step is one page of the journey. Branching lives in Next, so the route after a step depends
// only on that step's own answers.
type Step struct {
	Name  string
	Path  string
	View  string
	Title string
	// Fields are validated on POST and stored under Name in the session.
	Fields       []FieldRule
	RequiresAuth bool
	// Next returns the route to redirect to after a valid submission. Nil keeps the user on
	// the same step.
	Next func(answers map[string]string) string
}

func (s *Step) next(answers map[string]string) string {
	if s.Next == nil {
		return s.Path
	}
	return s.Next(answers)
}

func to(path string) func(map[string]string) string {
	return func(map[string]string) string { return path }
}

// ClaimSteps is the possession claim journey.
func ClaimSteps() []*Step {
	return []*Step{
		{
			Name:  "page1",
			Path:  PathPage1,
			View:  "page1.html",
			Title: "Make a possession claim",
			Next:  to(PathPage2),
		},
		{
			Name:   "page2",
			Path:   PathPage2,
			View:   "page2.html",
			Title:  "Is the property in England or Wales?",
			Fields: []FieldRule{{Field: "answer", Rule: RuleYesNo}},
			Next: func(answers map[string]string) string {
				if answers["answer"] == "yes" {
					return PathPage3Yes
				}
				return PathPage3No
			},
		},
		{
			Name:   "page3-yes",
			Path:   PathPage3Yes,
			View:   "page3_yes.html",
			Title:  "Tell us about the property",
			Fields: []FieldRule{{Field: "details", Rule: RuleText, Message: "Enter the property details"}},
			Next:   to(PathPage4),
		},
		{
			Name:  "page3-no",
			Path:  PathPage3No,
			View:  "page3_no.html",
			Title: "You may not be able to use this service",
			Next:  to(PathPage4),
		},
		{
			Name:         "page4",
			Path:         PathPage4,
			View:         "page4.html",
			Title:        "Check your answers",
			Fields:       []FieldRule{{Field: "confirm", Rule: RuleConfirm}},
			RequiresAuth: true,
			Next:         to(PathPage5),
		},
		{
			Name:         "page5",
			Path:         PathPage5,
			View:         "page5.html",
			Title:        "Claim summary",
			RequiresAuth: true,
			Next:         to("/"),
		},
	}
}
