// Package layer provides the thin-film layer stack model used by the fitter.
package layer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies what a layer means to the forward model.
type Role int

const (
	// RoleAuxiliary is any named material layer without a special meaning.
	RoleAuxiliary Role = iota
	// RoleTunable is a film layer whose parameters the fit is after.
	RoleTunable
	// RoleReference is the interface/oxide layer the forward model anchors on.
	RoleReference
	// RoleSubstrate is the semi-infinite base of the stack.
	RoleSubstrate
)

func (r Role) String() string {
	switch r {
	case RoleTunable:
		return "tunable"
	case RoleReference:
		return "reference"
	case RoleSubstrate:
		return "substrate"
	default:
		return "auxiliary"
	}
}

// ParseRole converts the textual role name back to a Role.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auxiliary", "":
		return RoleAuxiliary, nil
	case "tunable", "film":
		return RoleTunable, nil
	case "reference", "oxide":
		return RoleReference, nil
	case "substrate":
		return RoleSubstrate, nil
	}
	return RoleAuxiliary, fmt.Errorf("unknown layer role %q", s)
}

// RoleFromName derives the role from a layer label. It is only called when
// a layer is constructed without an explicit role.
func RoleFromName(name string) Role {
	switch {
	case strings.Contains(name, "Substrate"):
		return RoleSubstrate
	case strings.Contains(name, "Film"):
		return RoleTunable
	case strings.Contains(name, "SiO"):
		return RoleReference
	default:
		return RoleAuxiliary
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Field names one optimizable numeric field of a layer.
type Field int

const (
	FieldThickness Field = iota
	FieldSLD
	FieldRoughness
)

// Fields lists the fields in parameter-vector order.
var Fields = [...]Field{FieldThickness, FieldSLD, FieldRoughness}

func (f Field) String() string {
	switch f {
	case FieldThickness:
		return "thickness"
	case FieldSLD:
		return "sld"
	case FieldRoughness:
		return "roughness"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// ParseField converts a field name to a Field.
func ParseField(s string) (Field, error) {
	for _, f := range Fields {
		if strings.EqualFold(strings.TrimSpace(s), f.String()) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown layer field %q", s)
}

// FieldSet is a small bit set of fields.
type FieldSet uint8

// With returns the set with f added.
func (s FieldSet) With(f Field) FieldSet { return s | 1<<uint(f) }

// Has reports whether f is in the set.
func (s FieldSet) Has(f Field) bool { return s&(1<<uint(f)) != 0 }

// Names returns the field names in the set, in vector order.
func (s FieldSet) Names() []string {
	var names []string
	for _, f := range Fields {
		if s.Has(f) {
			names = append(names, f.String())
		}
	}
	return names
}

// Layer is one slab of the sample. Layers are values; edits go through the
// With* methods or Stack operations and never alias.
type Layer struct {
	Name      string
	Role      Role
	Thickness Value
	SLD       Value
	Roughness Value
	// Fixed fields are held constant during a fit.
	Fixed FieldSet
}

// New creates a layer whose role is derived from its name.
func New(name string, thickness, sld, roughness Value) Layer {
	return Layer{
		Name:      name,
		Role:      RoleFromName(name),
		Thickness: thickness,
		SLD:       sld,
		Roughness: roughness,
	}
}

// Substrate creates the terminal semi-infinite layer.
func Substrate(name string, sld, roughness float64) Layer {
	return Layer{
		Name:      name,
		Role:      RoleSubstrate,
		Thickness: Inf(),
		SLD:       Num(sld),
		Roughness: Num(roughness),
	}
}

// Get returns the value of a field.
func (l Layer) Get(f Field) Value {
	switch f {
	case FieldThickness:
		return l.Thickness
	case FieldSLD:
		return l.SLD
	default:
		return l.Roughness
	}
}

// With returns a copy of the layer with field f set to v.
func (l Layer) With(f Field, v Value) Layer {
	switch f {
	case FieldThickness:
		l.Thickness = v
	case FieldSLD:
		l.SLD = v
	default:
		l.Roughness = v
	}
	return l
}

// WithFixed returns a copy of the layer with the given fields pinned.
func (l Layer) WithFixed(fields ...Field) Layer {
	for _, f := range fields {
		l.Fixed = l.Fixed.With(f)
	}
	return l
}

// IsSubstrate reports whether the layer is the semi-infinite base.
func (l Layer) IsSubstrate() bool { return l.Role == RoleSubstrate }

// Free reports whether field f takes part in a fit.
func (l Layer) Free(f Field) bool {
	if l.Fixed.Has(f) {
		return false
	}
	if f == FieldThickness && (l.IsSubstrate() || l.Thickness.IsInfinite()) {
		return false
	}
	return true
}

// Validate checks the per-layer invariants.
func (l Layer) Validate() error {
	if l.IsSubstrate() {
		if !l.Thickness.IsInfinite() {
			return fmt.Errorf("substrate %q must have infinite thickness", l.Name)
		}
	} else {
		if l.Thickness.IsInfinite() {
			return fmt.Errorf("layer %q: only the substrate may be infinitely thick", l.Name)
		}
		if l.Thickness.IsKnown() && l.Thickness.Num < 0 {
			return fmt.Errorf("layer %q: negative thickness %g", l.Name, l.Thickness.Num)
		}
	}
	if l.SLD.IsInfinite() || l.Roughness.IsInfinite() {
		return fmt.Errorf("layer %q: only thickness may be infinite", l.Name)
	}
	if l.Roughness.IsKnown() && l.Roughness.Num < 0 {
		return fmt.Errorf("layer %q: negative roughness %g", l.Name, l.Roughness.Num)
	}
	return nil
}

// layerDoc is the serialized form shared by JSON and YAML.
type layerDoc struct {
	Name      string   `json:"name" yaml:"name"`
	Role      string   `json:"role,omitempty" yaml:"role,omitempty"`
	Thickness Value    `json:"thickness" yaml:"thickness"`
	SLD       Value    `json:"sld" yaml:"sld"`
	Roughness Value    `json:"roughness" yaml:"roughness"`
	Fixed     []string `json:"fixed,omitempty" yaml:"fixed,omitempty"`
}

func (l Layer) doc() layerDoc {
	return layerDoc{
		Name:      l.Name,
		Role:      l.Role.String(),
		Thickness: l.Thickness,
		SLD:       l.SLD,
		Roughness: l.Roughness,
		Fixed:     l.Fixed.Names(),
	}
}

func (d layerDoc) layer() (Layer, error) {
	l := Layer{
		Name:      d.Name,
		Role:      RoleFromName(d.Name),
		Thickness: d.Thickness,
		SLD:       d.SLD,
		Roughness: d.Roughness,
	}
	if d.Role != "" {
		role, err := ParseRole(d.Role)
		if err != nil {
			return Layer{}, err
		}
		l.Role = role
	}
	for _, name := range d.Fixed {
		f, err := ParseField(name)
		if err != nil {
			return Layer{}, fmt.Errorf("layer %q: %w", d.Name, err)
		}
		l.Fixed = l.Fixed.With(f)
	}
	return l, nil
}

// MarshalJSON implements json.Marshaler.
func (l Layer) MarshalJSON() ([]byte, error) { return json.Marshal(l.doc()) }

// UnmarshalJSON implements json.Unmarshaler.
func (l *Layer) UnmarshalJSON(data []byte) error {
	var d layerDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	parsed, err := d.layer()
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (l Layer) MarshalYAML() (interface{}, error) { return l.doc(), nil }

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *Layer) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var d layerDoc
	if err := unmarshal(&d); err != nil {
		return err
	}
	parsed, err := d.layer()
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
