// Package params maps a layer stack onto a flat, bounded optimization vector
// and back.
package params

import (
	"errors"
	"fmt"

	"xrr-analyzer/internal/layer"
)

// ErrLengthMismatch is returned when a vector does not match its mapping.
var ErrLengthMismatch = errors.New("parameter vector length does not match mapping")

// Range is a closed interval [Min, Max].
type Range struct {
	Min float64 `json:"min" yaml:"min" mapstructure:"min"`
	Max float64 `json:"max" yaml:"max" mapstructure:"max"`
}

// Contains reports whether v lies in the range.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Bounds holds the search interval for each field.
type Bounds struct {
	Thickness Range `json:"thickness" yaml:"thickness" mapstructure:"thickness"`
	SLD       Range `json:"sld" yaml:"sld" mapstructure:"sld"`
	Roughness Range `json:"roughness" yaml:"roughness" mapstructure:"roughness"`
}

// DefaultBounds returns the stock search intervals.
func DefaultBounds() Bounds {
	return Bounds{
		Thickness: Range{Min: 0, Max: 5000},
		SLD:       Range{Min: 0, Max: 50},
		Roughness: Range{Min: 0, Max: 50},
	}
}

// For returns the range for a field.
func (b Bounds) For(f layer.Field) Range {
	switch f {
	case layer.FieldThickness:
		return b.Thickness
	case layer.FieldSLD:
		return b.SLD
	default:
		return b.Roughness
	}
}

// Validate checks that every range is non-empty.
func (b Bounds) Validate() error {
	for _, f := range layer.Fields {
		r := b.For(f)
		if !(r.Min < r.Max) {
			return fmt.Errorf("%s bounds: min %g must be below max %g", f, r.Min, r.Max)
		}
	}
	return nil
}

// Seeds are the starting values used for fields that are pending.
var Seeds = map[layer.Field]float64{
	layer.FieldThickness: 10,
	layer.FieldSLD:       2.33,
	layer.FieldRoughness: 0.3,
}

// Slot identifies which layer field a vector element controls.
type Slot struct {
	Layer int
	Field layer.Field
}

func (s Slot) String() string { return fmt.Sprintf("layer[%d].%s", s.Layer, s.Field) }

// Mapping is the immutable slot table built by Flatten.
type Mapping struct {
	slots  []Slot
	layers int
}

// Len returns the number of free parameters.
func (m *Mapping) Len() int { return len(m.slots) }

// Slot returns the slot for vector index i.
func (m *Mapping) Slot(i int) Slot { return m.slots[i] }

// Index returns the vector index of a layer field, or -1 if it is not free.
func (m *Mapping) Index(layerIdx int, f layer.Field) int {
	for i, s := range m.slots {
		if s.Layer == layerIdx && s.Field == f {
			return i
		}
	}
	return -1
}

// Vector is a flattened stack with its bounds.
type Vector struct {
	X       []float64
	Lower   []float64
	Upper   []float64
	Mapping *Mapping
}

// Flatten lists every free field of the stack in layer order, thickness then
// SLD then roughness. The substrate thickness and fixed fields are skipped.
func Flatten(s layer.Stack, b Bounds) Vector {
	m := &Mapping{layers: s.Len()}
	var v Vector
	for i := 0; i < s.Len(); i++ {
		l := s.At(i)
		for _, f := range layer.Fields {
			if !l.Free(f) {
				continue
			}
			r := b.For(f)
			m.slots = append(m.slots, Slot{Layer: i, Field: f})
			v.X = append(v.X, l.Get(f).Or(Seeds[f]))
			v.Lower = append(v.Lower, r.Min)
			v.Upper = append(v.Upper, r.Max)
		}
	}
	v.Mapping = m
	return v
}

// Unflatten writes x back into a copy of the template stack. The template
// must be the stack the mapping was built from.
func Unflatten(template layer.Stack, x []float64, m *Mapping) (layer.Stack, error) {
	if len(x) != len(m.slots) {
		return template, fmt.Errorf("%w: got %d values, mapping has %d", ErrLengthMismatch, len(x), len(m.slots))
	}
	if template.Len() != m.layers {
		return template, fmt.Errorf("%w: template has %d layers, mapping expects %d", ErrLengthMismatch, template.Len(), m.layers)
	}
	layers := template.Layers()
	for i, s := range m.slots {
		layers[s.Layer] = layers[s.Layer].With(s.Field, layer.Num(x[i]))
	}
	return layer.NewStack(layers...), nil
}
