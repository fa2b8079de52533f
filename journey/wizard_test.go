package journey_test

import (
	"net/url"
	"testing"
	"time"

	"github.com/jrsteele09/possession-claims-frontend/journey"
	"github.com/jrsteele09/possession-claims-frontend/sessions"
	"github.com/stretchr/testify/require"
)

func newWizard(t *testing.T) *journey.Wizard {
	t.Helper()
	w, err := journey.NewWizard(journey.ClaimSteps())
	require.NoError(t, err)
	return w
}

func step(t *testing.T, w *journey.Wizard, path string) *journey.Step {
	t.Helper()
	s, ok := w.Lookup(path)
	require.True(t, ok, "no step at %s", path)
	return s
}

func TestNewWizard(t *testing.T) {
	t.Run("unknown rule", func(t *testing.T) {
		_, err := journey.NewWizard([]*journey.Step{{
			Name:   "bad",
			Path:   "/steps/bad",
			Fields: []journey.FieldRule{{Field: "x", Rule: "postcode"}},
		}})
		require.ErrorContains(t, err, "unknown rule")
	})

	t.Run("duplicate path", func(t *testing.T) {
		_, err := journey.NewWizard([]*journey.Step{
			{Name: "a", Path: "/steps/a"},
			{Name: "b", Path: "/steps/a"},
		})
		require.ErrorContains(t, err, "duplicate")
	})

	t.Run("claim steps are well formed", func(t *testing.T) {
		w := newWizard(t)
		require.Len(t, w.Steps(), 6)
		require.True(t, step(t, w, journey.PathPage4).RequiresAuth)
		require.True(t, step(t, w, journey.PathPage5).RequiresAuth)
		require.False(t, step(t, w, journey.PathPage2).RequiresAuth)
	})
}

func TestSubmit_Page2Branching(t *testing.T) {
	w := newWizard(t)
	page2 := step(t, w, journey.PathPage2)

	tests := []struct {
		name      string
		form      url.Values
		wantNext  string
		wantError string
	}{
		{name: "yes", form: url.Values{"answer": {"yes"}}, wantNext: journey.PathPage3Yes},
		{name: "no", form: url.Values{"answer": {"no"}}, wantNext: journey.PathPage3No},
		{name: "missing", form: url.Values{}, wantError: "Please select an option"},
		{name: "blank", form: url.Values{"answer": {"  "}}, wantError: "Please select an option"},
		{name: "unexpected value", form: url.Values{"answer": {"maybe"}}, wantError: "Please select an option"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sessions.New("sid", time.Now())
			res := w.Submit(page2, s, tt.form)

			if tt.wantError != "" {
				require.False(t, res.Valid())
				require.Equal(t, tt.wantError, res.FirstError(page2))
				require.Empty(t, res.Next)
				require.Empty(t, s.CompletedSteps())
				require.Empty(t, s.StepData("page2"))
				return
			}
			require.True(t, res.Valid())
			require.Equal(t, tt.wantNext, res.Next)
			require.Equal(t, []string{"page2"}, s.CompletedSteps())
			require.Equal(t, map[string]string{"answer": tt.form.Get("answer")}, s.StepData("page2"))
		})
	}
}

func TestSubmit_IsIdempotentAndScoped(t *testing.T) {
	w := newWizard(t)
	s := sessions.New("sid", time.Now())
	page2 := step(t, w, journey.PathPage2)
	page3 := step(t, w, journey.PathPage3Yes)

	require.True(t, w.Submit(page2, s, url.Values{"answer": {"yes"}}).Valid())
	require.True(t, w.Submit(page3, s, url.Values{"details": {"2 bed flat, rent arrears"}}).Valid())
	require.True(t, w.Submit(page2, s, url.Values{"answer": {"yes"}}).Valid())

	require.Equal(t, []string{"page2", "page3-yes"}, s.CompletedSteps())
	require.Equal(t, map[string]string{"answer": "yes"}, s.StepData("page2"))
	require.Equal(t, map[string]string{"details": "2 bed flat, rent arrears"}, s.StepData("page3-yes"))
	require.Equal(t, map[string]string{"answer": "yes"}, w.Answers(page2, s))

	all := w.AllAnswers(s)
	require.Len(t, all, 2)
	require.Equal(t, "2 bed flat, rent arrears", all["page3-yes"]["details"])
}

func TestSubmit_FieldRules(t *testing.T) {
	w := newWizard(t)

	t.Run("text uses the step message", func(t *testing.T) {
		page3 := step(t, w, journey.PathPage3Yes)
		res := w.Submit(page3, sessions.New("sid", time.Now()), url.Values{})
		require.Equal(t, "Enter the property details", res.FirstError(page3))
	})

	t.Run("confirm must be yes", func(t *testing.T) {
		page4 := step(t, w, journey.PathPage4)
		s := sessions.New("sid", time.Now())

		res := w.Submit(page4, s, url.Values{"confirm": {"no"}})
		require.False(t, res.Valid())
		require.Equal(t, "no", res.Values["confirm"])

		res = w.Submit(page4, s, url.Values{"confirm": {"yes"}})
		require.True(t, res.Valid())
		require.Equal(t, journey.PathPage5, res.Next)
	})

	t.Run("steps without fields always advance", func(t *testing.T) {
		page1 := step(t, w, journey.PathPage1)
		s := sessions.New("sid", time.Now())
		res := w.Submit(page1, s, url.Values{})
		require.True(t, res.Valid())
		require.Equal(t, journey.PathPage2, res.Next)
		require.True(t, s.IsStepComplete("page1"))
	})

	t.Run("email rule", func(t *testing.T) {
		w, err := journey.NewWizard([]*journey.Step{{
			Name:   "contact",
			Path:   "/steps/contact",
			Fields: []journey.FieldRule{{Field: "email", Rule: journey.RuleEmail}},
		}})
		require.NoError(t, err)
		contact := step(t, w, "/steps/contact")
		s := sessions.New("sid", time.Now())

		require.False(t, w.Submit(contact, s, url.Values{"email": {"not-an-email"}}).Valid())
		res := w.Submit(contact, s, url.Values{"email": {"jo@example.com"}})
		require.True(t, res.Valid())
		require.Equal(t, "/steps/contact", res.Next, "a step without Next stays put")
	})
}
