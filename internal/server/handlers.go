package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"xrr-analyzer/internal/curve"
	"xrr-analyzer/internal/fit"
	"xrr-analyzer/internal/fourier"
	"xrr-analyzer/internal/jobs"
	"xrr-analyzer/internal/layer"
	"xrr-analyzer/internal/version"
)

type curveRequest struct {
	Q          []float64 `json:"q"`
	Intensity  []float64 `json:"intensity"`
	Wavelength float64   `json:"wavelength,omitempty"`
}

func (c curveRequest) curve() curve.Curve { return curve.Curve{Q: c.Q, Intensity: c.Intensity} }

type fitRequest struct {
	curveRequest
	Stack *layer.Stack `json:"stack,omitempty"`
	// Timeout is a Go duration string such as "30s".
	Timeout string `json:"timeout,omitempty"`
	// Wait blocks the response until the job finishes or times out.
	Wait bool `json:"wait,omitempty"`
}

type fourierRequest struct {
	curveRequest
	MaxDepth float64 `json:"max_depth,omitempty"`
}

type errorView struct {
	Error string `json:"error"`
}

type resultView struct {
	Success            bool        `json:"success"`
	Error              string      `json:"error,omitempty"`
	Stack              layer.Stack `json:"stack"`
	Rows               []layer.Row `json:"rows"`
	Wavelength         float64     `json:"wavelength"`
	Scale              float64     `json:"scale"`
	Cost               float64     `json:"cost"`
	InitialCost        float64     `json:"initial_cost"`
	RMS                float64     `json:"rms"`
	Status             string      `json:"status"`
	Iterations         int         `json:"iterations"`
	Evaluations        int         `json:"evaluations"`
	SimulationFailures int         `json:"simulation_failures"`
	DurationMS         float64     `json:"duration_ms"`
}

type jobView struct {
	ID        string      `json:"id"`
	State     jobs.State  `json:"state"`
	Submitted time.Time   `json:"submitted"`
	Started   *time.Time  `json:"started,omitempty"`
	Finished  *time.Time  `json:"finished,omitempty"`
	Result    *resultView `json:"result,omitempty"`
}

type fourierView struct {
	Spectrum fourier.Spectrum `json:"spectrum"`
	Peak     *fourier.Peak    `json:"peak,omitempty"`
}

type predictView struct {
	Stack layer.Stack `json:"stack"`
	Rows  []layer.Row `json:"rows"`
}

func newResultView(r fit.Result) *resultView {
	v := &resultView{
		Success:            r.Success,
		Stack:              r.Stack,
		Rows:               layer.FormatRows(r.Stack),
		Wavelength:         r.Wavelength,
		Scale:              r.Scale,
		Cost:               r.Cost,
		InitialCost:        r.InitialCost,
		RMS:                r.RMS,
		Status:             r.Status.String(),
		Iterations:         r.Iterations,
		Evaluations:        r.Evaluations,
		SimulationFailures: r.SimulationFailures,
		DurationMS:         float64(r.Duration.Microseconds()) / 1000,
	}
	if r.Err != nil {
		v.Error = r.Err.Error()
	}
	return v
}

func newJobView(j jobs.Job) jobView {
	v := jobView{ID: j.ID, State: j.State, Submitted: j.Submitted}
	if !j.Started.IsZero() {
		v.Started = &j.Started
	}
	if !j.Finished.IsZero() {
		v.Finished = &j.Finished
	}
	if j.Result != nil {
		v.Result = newResultView(*j.Result)
	}
	return v
}

func (s *Server) handleSubmitFit(w http.ResponseWriter, r *http.Request) {
	var req fitRequest
	if !s.decode(w, r, &req) {
		return
	}
	c := req.curve()
	if err := c.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var timeout time.Duration
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid timeout %q", req.Timeout))
			return
		}
		timeout = d
	}
	wavelength := req.Wavelength
	if wavelength <= 0 {
		wavelength = s.opts.Wavelength
	}

	var stack layer.Stack
	switch {
	case req.Stack != nil:
		stack = *req.Stack
	case s.predictor != nil:
		predicted, err := s.predictor.Predict(c.Q, c.Intensity, wavelength)
		if err != nil {
			s.log.Info().Err(err).Msg("prediction failed, fitting from the template")
			stack = s.opts.Template
		} else {
			stack = predicted
		}
	default:
		stack = s.opts.Template
	}
	if err := stack.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := s.runner.Submit(jobs.Request{
		Stack:      stack,
		Q:          c.Q,
		Intensity:  c.Intensity,
		Wavelength: wavelength,
		Timeout:    timeout,
	})
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	if !req.Wait {
		job, err := s.runner.Get(id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Location", "/v1/fits/"+id)
		s.writeJSON(w, http.StatusAccepted, newJobView(job))
		return
	}

	job, err := s.runner.Wait(r.Context(), id)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newJobView(job))
}

func (s *Server) handleGetFit(w http.ResponseWriter, r *http.Request) {
	job, err := s.runner.Get(r.PathValue("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newJobView(job))
}

func (s *Server) handleFourier(w http.ResponseWriter, r *http.Request) {
	var req fourierRequest
	if !s.decode(w, r, &req) {
		return
	}
	c := req.curve()
	if err := c.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	maxDepth := req.MaxDepth
	if maxDepth <= 0 {
		maxDepth = s.opts.MaxDepth
	}
	spectrum := fourier.Estimate(c.Q, c.Intensity)
	view := fourierView{Spectrum: spectrum.Window(maxDepth)}
	if p, ok := spectrum.Peak(firstBin(spectrum), maxDepth); ok {
		view.Peak = &p
	}
	s.writeJSON(w, http.StatusOK, view)
}

// firstBin is the depth of the first non-DC bin.
func firstBin(spectrum fourier.Spectrum) float64 {
	if spectrum.Len() > 1 {
		return spectrum.Depth[1]
	}
	return 0
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if s.predictor == nil {
		s.writeError(w, http.StatusNotImplemented, errors.New("no predictor configured"))
		return
	}
	var req curveRequest
	if !s.decode(w, r, &req) {
		return
	}
	c := req.curve()
	if err := c.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	wavelength := req.Wavelength
	if wavelength <= 0 {
		wavelength = s.opts.Wavelength
	}
	stack, err := s.predictor.Predict(c.Q, c.Intensity, wavelength)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.writeJSON(w, http.StatusOK, predictView{Stack: stack, Rows: layer.FormatRows(stack)})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.String()})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorView{Error: err.Error()})
}
