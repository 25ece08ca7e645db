package simulate

import (
	"context"

	"xrr-analyzer/internal/extproc"
	"xrr-analyzer/internal/layer"
)

// Request is the JSON document sent to an external model.
type Request struct {
	Q      []float64   `json:"q"`
	Layers layer.Stack `json:"layers"`
}

// Response is the JSON document an external model writes back.
type Response struct {
	Intensity []float64 `json:"intensity"`
	Error     string    `json:"error,omitempty"`
}

// Exec runs the forward model as an external process per call.
type Exec struct {
	Command extproc.Command
}

// NewExec creates an Exec simulator.
func NewExec(cmd extproc.Command) *Exec {
	return &Exec{Command: cmd}
}

// Simulate implements Simulator.
func (e *Exec) Simulate(q []float64, s layer.Stack) ([]float64, error) {
	var resp Response
	if err := e.Command.Call(context.Background(), Request{Q: q, Layers: s}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, &ModelError{Message: resp.Error}
	}
	return resp.Intensity, nil
}

// ModelError is an error reported by the external model itself.
type ModelError struct {
	Message string
}

func (e *ModelError) Error() string { return "forward model: " + e.Message }
