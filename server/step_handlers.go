package server

import (
	"fmt"
	"net/http"

	"github.com/jrsteele09/possession-claims-frontend/journey"
	"github.com/rs/zerolog/log"
)

// StepHandlers builds the GET and POST handlers for one journey step.
func (s *Server) StepHandlers(step *journey.Step) (http.HandlerFunc, http.HandlerFunc, error) {
	tmpl, err := ParseTemplate(step.View)
	if err != nil {
		return nil, nil, fmt.Errorf("[Server StepHandlers] step %s: %w", step.Name, err)
	}

	get := func(w http.ResponseWriter, r *http.Request) {
		sess := currentSession(r)
		data := s.newPage(r, step.Title)
		data.Step = step
		data.Values = s.wizard.Answers(step, sess)
		data.Answers = s.wizard.AllAnswers(sess)
		s.render(w, tmpl, http.StatusOK, data)
	}

	post := func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			s.metrics.StepSubmissions.WithLabelValues(step.Name, "invalid").Inc()
			http.Error(w, "Invalid form submission", http.StatusBadRequest)
			return
		}

		sess := currentSession(r)
		res := s.wizard.Submit(step, sess, r.PostForm)
		if !res.Valid() {
			s.metrics.StepSubmissions.WithLabelValues(step.Name, "invalid").Inc()
			log.Debug().Str("step", step.Name).Interface("errors", res.Errors).Msg("step rejected")

			data := s.newPage(r, step.Title)
			data.Step = step
			data.Values = res.Values
			data.Errors = res.Errors
			data.Error = res.FirstError(step)
			data.Answers = s.wizard.AllAnswers(sess)
			s.render(w, tmpl, http.StatusBadRequest, data)
			return
		}

		s.metrics.StepSubmissions.WithLabelValues(step.Name, "ok").Inc()
		redirectSuccess(w, r, res.Next)
	}

	return get, post, nil
}
