// Package project provides fit session file handling and persistence.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"xrr-analyzer/internal/fit"
	"xrr-analyzer/internal/layer"
	"xrr-analyzer/internal/params"
)

// Extension is the session file extension.
const Extension = ".xrrproj"

// CurrentVersion is the file format version written by Save.
const CurrentVersion = 1

// ErrVersion is returned for files written by a newer format.
var ErrVersion = errors.New("unsupported project version")

// File represents a fit session file (.xrrproj).
type File struct {
	Version     int       `json:"version"`
	Name        string    `json:"name"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
	Description string    `json:"description,omitempty"`

	// Measured curve path (relative to project file)
	CurvePath string `json:"curve,omitempty"`

	// Wavelength of the source in Å.
	Wavelength float64 `json:"wavelength"`

	Initial   layer.Stack  `json:"initial"`
	Predicted *layer.Stack `json:"predicted,omitempty"`
	Fitted    *layer.Stack `json:"fitted,omitempty"`
	LastFit   *FitSummary  `json:"last_fit,omitempty"`

	Settings Settings `json:"settings"`
}

// Settings holds the fit settings saved with the session.
type Settings struct {
	Model  string        `json:"model,omitempty"`
	Bounds params.Bounds `json:"bounds"`
}

// FitSummary records the outcome of the last fit.
type FitSummary struct {
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	Status      string        `json:"status,omitempty"`
	Cost        float64       `json:"cost"`
	InitialCost float64       `json:"initial_cost"`
	RMS         float64       `json:"rms"`
	Iterations  int           `json:"iterations"`
	Evaluations int           `json:"evaluations"`
	Duration    time.Duration `json:"duration"`
}

// New creates a new session with the default stack and bounds.
func New(name string, wavelength float64) *File {
	now := time.Now()
	return &File{
		Version:    CurrentVersion,
		Name:       name,
		Created:    now,
		Modified:   now,
		Wavelength: wavelength,
		Initial:    layer.Default(),
		Settings:   Settings{Bounds: params.DefaultBounds()},
	}
}

// Load loads a session from a .xrrproj file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var proj File
	if err := json.Unmarshal(data, &proj); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if proj.Version > CurrentVersion {
		return nil, fmt.Errorf("%s: %w %d", path, ErrVersion, proj.Version)
	}
	if err := proj.Initial.Validate(); err != nil {
		return nil, fmt.Errorf("%s: initial stack: %w", path, err)
	}

	return &proj, nil
}

// Save saves the session to a file.
func (p *File) Save(path string) error {
	p.Modified = time.Now()
	if p.Version == 0 {
		p.Version = CurrentVersion
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// SetCurve sets the measured curve path (relative to project).
func (p *File) SetCurve(projectPath, curvePath string) {
	rel, err := filepath.Rel(filepath.Dir(projectPath), curvePath)
	if err != nil {
		p.CurvePath = curvePath
	} else {
		p.CurvePath = rel
	}
	p.Modified = time.Now()
}

// GetCurvePath returns the absolute path to the measured curve.
func (p *File) GetCurvePath(projectPath string) string {
	if p.CurvePath == "" {
		return ""
	}
	if filepath.IsAbs(p.CurvePath) {
		return p.CurvePath
	}
	return filepath.Join(filepath.Dir(projectPath), p.CurvePath)
}

// GetPlotPath returns the default figure path next to the project file.
func (p *File) GetPlotPath(projectPath string) string {
	base := strings.TrimSuffix(projectPath, filepath.Ext(projectPath))
	return base + "_fit.png"
}

// SetPrediction records a predicted stack and makes it the next starting
// point.
func (p *File) SetPrediction(s layer.Stack) {
	p.Predicted = &s
	p.Initial = s
	p.Modified = time.Now()
}

// Record stores the outcome of a fit. A failed fit clears the fitted stack.
func (p *File) Record(res fit.Result) {
	sum := &FitSummary{
		Success:     res.Success,
		Status:      res.Status.String(),
		Cost:        res.Cost,
		InitialCost: res.InitialCost,
		RMS:         res.RMS,
		Iterations:  res.Iterations,
		Evaluations: res.Evaluations,
		Duration:    res.Duration,
	}
	if res.Err != nil {
		sum.Error = res.Err.Error()
	}
	p.LastFit = sum
	if s, ok := res.Refined(); ok {
		p.Fitted = &s
	} else {
		p.Fitted = nil
	}
	p.Modified = time.Now()
}

// Start returns the stack the next fit should start from: the fitted stack
// if there is one, else the initial stack.
func (p *File) Start() layer.Stack {
	if p.Fitted != nil {
		return *p.Fitted
	}
	return p.Initial
}
