package layer

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// ErrEmptyStack is returned when a stack has no layers.
var ErrEmptyStack = errors.New("layer stack is empty")

// Stack is an ordered list of layers from the ambient side (index 0) down to
// the substrate. The zero value is an empty stack. Every edit returns a new
// Stack; the receiver is never modified.
type Stack struct {
	layers []Layer
}

// NewStack builds a stack from the given layers, top to bottom.
func NewStack(layers ...Layer) Stack {
	return Stack{layers: append([]Layer(nil), layers...)}
}

// Default returns the film-on-oxidized-silicon template.
func Default() Stack {
	return NewStack(
		New("Film", Num(100.0), Num(3.0), Num(0.5)),
		New("SiO₂", Num(10.0), Num(2.0), Num(0.4)),
		Substrate("Si Substrate", 2.33, 0.2),
	)
}

// Len returns the number of layers.
func (s Stack) Len() int { return len(s.layers) }

// IsEmpty reports whether the stack has no layers.
func (s Stack) IsEmpty() bool { return len(s.layers) == 0 }

// At returns the layer at index i.
func (s Stack) At(i int) Layer { return s.layers[i] }

// Layers returns a copy of the layers.
func (s Stack) Layers() []Layer { return append([]Layer(nil), s.layers...) }

// Has reports whether any layer has the given role.
func (s Stack) Has(role Role) bool { return s.Index(role) >= 0 }

// Index returns the index of the first layer with the given role, or -1.
func (s Stack) Index(role Role) int {
	for i, l := range s.layers {
		if l.Role == role {
			return i
		}
	}
	return -1
}

// Simulatable reports whether the stack carries the tunable film and the
// reference layer a forward model needs.
func (s Stack) Simulatable() bool {
	return s.Has(RoleTunable) && s.Has(RoleReference)
}

// TotalThickness sums the known finite thicknesses above the substrate.
func (s Stack) TotalThickness() float64 {
	var total float64
	for _, l := range s.layers {
		if l.Thickness.IsKnown() {
			total += l.Thickness.Num
		}
	}
	return total
}

// Validate checks the stack invariants: at least one layer, exactly one
// substrate, placed last, and every layer valid on its own.
func (s Stack) Validate() error {
	if s.IsEmpty() {
		return ErrEmptyStack
	}
	substrates := 0
	for i, l := range s.layers {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
		if l.IsSubstrate() {
			substrates++
			if i != len(s.layers)-1 {
				return fmt.Errorf("substrate %q must be the last layer", l.Name)
			}
		}
	}
	if substrates != 1 {
		return fmt.Errorf("stack must have exactly one substrate, found %d", substrates)
	}
	return nil
}

// Equal reports whether two stacks hold the same layers in the same order.
func (s Stack) Equal(other Stack) bool {
	if len(s.layers) != len(other.layers) {
		return false
	}
	for i := range s.layers {
		if s.layers[i] != other.layers[i] {
			return false
		}
	}
	return true
}

func (s Stack) checkIndex(i int) error {
	if i < 0 || i >= len(s.layers) {
		return fmt.Errorf("layer index %d out of range [0,%d)", i, len(s.layers))
	}
	return nil
}

// Replace returns a stack with the layer at index i replaced.
func (s Stack) Replace(i int, l Layer) (Stack, error) {
	if err := s.checkIndex(i); err != nil {
		return s, err
	}
	out := s.Layers()
	out[i] = l
	return Stack{layers: out}, nil
}

// Insert returns a stack with l inserted before index i. i == Len appends.
func (s Stack) Insert(i int, l Layer) (Stack, error) {
	if i < 0 || i > len(s.layers) {
		return s, fmt.Errorf("insert position %d out of range [0,%d]", i, len(s.layers))
	}
	out := make([]Layer, 0, len(s.layers)+1)
	out = append(out, s.layers[:i]...)
	out = append(out, l)
	out = append(out, s.layers[i:]...)
	return Stack{layers: out}, nil
}

// Add places l directly above the substrate, or at the bottom when the stack
// has no substrate yet.
func (s Stack) Add(l Layer) Stack {
	pos := len(s.layers)
	if n := len(s.layers); n > 0 && s.layers[n-1].IsSubstrate() {
		pos = n - 1
	}
	out, _ := s.Insert(pos, l)
	return out
}

// Remove returns a stack without the layer at index i. The substrate cannot
// be removed.
func (s Stack) Remove(i int) (Stack, error) {
	if err := s.checkIndex(i); err != nil {
		return s, err
	}
	if s.layers[i].IsSubstrate() {
		return s, fmt.Errorf("cannot remove substrate %q", s.layers[i].Name)
	}
	out := make([]Layer, 0, len(s.layers)-1)
	out = append(out, s.layers[:i]...)
	out = append(out, s.layers[i+1:]...)
	return Stack{layers: out}, nil
}

// MoveUp swaps layer i with the one above it and returns the layer's new
// index. Moving the top layer is a no-op.
func (s Stack) MoveUp(i int) (Stack, int, error) {
	if err := s.checkIndex(i); err != nil {
		return s, i, err
	}
	if s.layers[i].IsSubstrate() {
		return s, i, fmt.Errorf("cannot move substrate %q", s.layers[i].Name)
	}
	if i == 0 {
		return s, i, nil
	}
	out := s.Layers()
	out[i], out[i-1] = out[i-1], out[i]
	return Stack{layers: out}, i - 1, nil
}

// MoveDown swaps layer i with the one below it and returns the layer's new
// index. A layer never moves below the substrate.
func (s Stack) MoveDown(i int) (Stack, int, error) {
	if err := s.checkIndex(i); err != nil {
		return s, i, err
	}
	if s.layers[i].IsSubstrate() {
		return s, i, fmt.Errorf("cannot move substrate %q", s.layers[i].Name)
	}
	if i == len(s.layers)-1 || s.layers[i+1].IsSubstrate() {
		return s, i, nil
	}
	out := s.Layers()
	out[i], out[i+1] = out[i+1], out[i]
	return Stack{layers: out}, i + 1, nil
}

// Placeholder keeps the layer names and roles but resets every value to
// pending, keeping the substrate infinitely thick.
func (s Stack) Placeholder() Stack {
	out := make([]Layer, len(s.layers))
	for i, l := range s.layers {
		p := Layer{Name: l.Name, Role: l.Role, Fixed: l.Fixed}
		if l.IsSubstrate() {
			p.Thickness = Inf()
		}
		out[i] = p
	}
	return Stack{layers: out}
}

// MarshalJSON writes the stack as a JSON array of layers.
func (s Stack) MarshalJSON() ([]byte, error) {
	if s.layers == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.layers)
}

// UnmarshalJSON reads a JSON array of layers.
func (s *Stack) UnmarshalJSON(data []byte) error {
	var layers []Layer
	if err := json.Unmarshal(data, &layers); err != nil {
		return err
	}
	s.layers = layers
	return nil
}

// MarshalYAML writes the stack as a YAML sequence.
func (s Stack) MarshalYAML() (interface{}, error) {
	if s.layers == nil {
		return []Layer{}, nil
	}
	return s.layers, nil
}

// UnmarshalYAML reads a YAML sequence of layers.
func (s *Stack) UnmarshalYAML(node *yaml.Node) error {
	var layers []Layer
	if err := node.Decode(&layers); err != nil {
		return err
	}
	s.layers = layers
	return nil
}
