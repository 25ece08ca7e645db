package layer

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// State describes whether a numeric layer field holds a usable number.
type State uint8

const (
	// Pending means the value is unknown and rendered as a placeholder.
	// It is the zero State, so a missing field decodes as pending.
	Pending State = iota
	// Known means Num holds a concrete value.
	Known
	// Computed means the value will be filled in by a prediction or fit.
	Computed
	// Infinite marks the semi-infinite substrate thickness.
	Infinite
)

func (s State) String() string {
	switch s {
	case Known:
		return "known"
	case Pending:
		return "pending"
	case Computed:
		return "computed"
	case Infinite:
		return "infinite"
	default:
		return "unknown"
	}
}

// Text forms used when a Value is not a plain number.
const (
	InfiniteText = "∞"
	PendingText  = "?"
	ComputedText = "auto"
)

// Value is one numeric field of a layer.
type Value struct {
	Num   float64
	State State
}

// Num returns a known value.
func Num(v float64) Value { return Value{Num: v, State: Known} }

// Inf returns the infinite thickness marker.
func Inf() Value { return Value{State: Infinite} }

// Unknown returns a pending placeholder value.
func Unknown() Value { return Value{State: Pending} }

// Auto returns a value that is still to be computed.
func Auto() Value { return Value{State: Computed} }

// IsKnown reports whether the value holds a concrete number.
func (v Value) IsKnown() bool { return v.State == Known }

// IsInfinite reports whether the value is the infinite marker.
func (v Value) IsInfinite() bool { return v.State == Infinite }

// Or returns the number if known, otherwise fallback.
func (v Value) Or(fallback float64) float64 {
	if v.State == Known {
		return v.Num
	}
	return fallback
}

// Format renders the value with the given number of decimals.
func (v Value) Format(decimals int) string {
	switch v.State {
	case Known:
		return strconv.FormatFloat(v.Num, 'f', decimals, 64)
	case Infinite:
		return InfiniteText
	case Computed:
		return ComputedText
	default:
		return PendingText
	}
}

func (v Value) String() string {
	if v.State == Known {
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	}
	return v.Format(0)
}

// ParseValue accepts a number or one of the marker strings.
func ParseValue(s string) (Value, error) {
	t := strings.TrimSpace(s)
	switch strings.ToLower(t) {
	case "", PendingText, "pending", "unknown":
		return Unknown(), nil
	case InfiniteText, "inf", "infinite", "infinity":
		return Inf(), nil
	case ComputedText, "computed":
		return Auto(), nil
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return Value{}, fmt.Errorf("invalid layer value %q", s)
	}
	if math.IsInf(f, 1) {
		return Inf(), nil
	}
	if math.IsNaN(f) || math.IsInf(f, -1) {
		return Value{}, fmt.Errorf("invalid layer value %q", s)
	}
	return Num(f), nil
}

// MarshalJSON writes known values as numbers and markers as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.State == Known {
		return json.Marshal(v.Num)
	}
	return json.Marshal(v.Format(0))
}

// UnmarshalJSON accepts numbers, numeric strings and marker strings.
func (v *Value) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*v = Num(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("layer value must be a number or string: %s", data)
	}
	parsed, err := ParseValue(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalYAML mirrors MarshalJSON.
func (v Value) MarshalYAML() (interface{}, error) {
	if v.State == Known {
		return v.Num, nil
	}
	return v.Format(0), nil
}

// UnmarshalYAML mirrors UnmarshalJSON.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: layer value must be a scalar", node.Line)
	}
	parsed, err := ParseValue(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*v = parsed
	return nil
}
