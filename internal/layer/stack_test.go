package layer

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultStackIsValid(t *testing.T) {
	s := Default()
	require.NoError(t, s.Validate())
	assert.True(t, s.Simulatable())
	assert.Equal(t, RoleSubstrate, s.At(s.Len()-1).Role)
	assert.InDelta(t, 110.0, s.TotalThickness(), 1e-9)
}

func TestRoleFromName(t *testing.T) {
	tests := []struct {
		name string
		want Role
	}{
		{"Film", RoleTunable},
		{"Cr Film", RoleTunable},
		{"SiO₂", RoleReference},
		{"SiO", RoleReference},
		{"Si Substrate", RoleSubstrate},
		{"Au", RoleAuxiliary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoleFromName(tt.name))
		})
	}
}

func TestValidate(t *testing.T) {
	film := New("Film", Num(50), Num(3), Num(0.5))
	sub := Substrate("Si Substrate", 2.33, 0.2)

	tests := []struct {
		name    string
		stack   Stack
		wantErr bool
	}{
		{"empty", Stack{}, true},
		{"ok", NewStack(film, sub), false},
		{"no substrate", NewStack(film), true},
		{"substrate not last", NewStack(sub, film), true},
		{"two substrates", NewStack(film, sub, sub), true},
		{"negative thickness", NewStack(film.With(FieldThickness, Num(-1)), sub), true},
		{"finite substrate", NewStack(film, sub.With(FieldThickness, Num(3))), true},
		{"infinite film", NewStack(film.With(FieldThickness, Inf()), sub), true},
		{"pending values", NewStack(film.With(FieldSLD, Unknown()), sub), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.stack.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
	assert.ErrorIs(t, Stack{}.Validate(), ErrEmptyStack)
}

func TestEditsDoNotAlias(t *testing.T) {
	s := Default()
	before := s.Layers()

	edited, err := s.Replace(0, s.At(0).With(FieldThickness, Num(42)))
	require.NoError(t, err)
	assert.Equal(t, 42.0, edited.At(0).Thickness.Num)
	assert.Equal(t, before, s.Layers())

	cr, err := FromMaterial("Cr")
	require.NoError(t, err)
	added := s.Add(cr)
	require.Equal(t, 4, added.Len())
	assert.Equal(t, "Cr", added.At(2).Name)
	assert.True(t, added.At(3).IsSubstrate())
	assert.Equal(t, 3, s.Len())
}

func TestMoveAndRemove(t *testing.T) {
	s := Default()

	up, idx, err := s.MoveUp(1)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, "SiO₂", up.At(0).Name)

	same, idx, err := s.MoveDown(1)
	require.NoError(t, err)
	assert.Equal(t, 1, idx, "layer above the substrate stays put")
	assert.True(t, same.Equal(s))

	_, _, err = s.MoveUp(2)
	assert.Error(t, err, "substrate cannot move")

	_, err = s.Remove(2)
	assert.Error(t, err)

	removed, err := s.Remove(0)
	require.NoError(t, err)
	assert.Equal(t, 2, removed.Len())
	assert.False(t, removed.Simulatable())

	_, err = s.Insert(9, Layer{})
	assert.Error(t, err)
}

func TestPlaceholder(t *testing.T) {
	p := Default().Placeholder()
	require.Equal(t, 3, p.Len())
	assert.Equal(t, Pending, p.At(0).Thickness.State)
	assert.Equal(t, Pending, p.At(0).SLD.State)
	assert.True(t, p.At(2).Thickness.IsInfinite())
	assert.Equal(t, RoleTunable, p.At(0).Role)
}

func TestStackJSONRoundTrip(t *testing.T) {
	s := Default()
	s, err := s.Replace(1, s.At(1).WithFixed(FieldSLD))
	require.NoError(t, err)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"thickness":"∞"`)
	assert.Contains(t, string(data), `"fixed":["sld"]`)

	var back Stack
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Equal(s))
}

func TestLayerJSONDerivesRole(t *testing.T) {
	var l Layer
	require.NoError(t, json.Unmarshal([]byte(`{"name":"Film","thickness":"12.5","sld":"?","roughness":0.3}`), &l))
	assert.Equal(t, RoleTunable, l.Role)
	assert.Equal(t, Num(12.5), l.Thickness)
	assert.Equal(t, Pending, l.SLD.State)

	require.NoError(t, json.Unmarshal([]byte(`{"name":"Cap","role":"reference","thickness":3,"sld":2,"roughness":0.1}`), &l))
	assert.Equal(t, RoleReference, l.Role)

	assert.Error(t, json.Unmarshal([]byte(`{"name":"x","role":"bogus"}`), &l))
	assert.Error(t, json.Unmarshal([]byte(`{"name":"x","thickness":"abc"}`), &l))
}

func TestLoadSaveStack(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"stack.yaml", "stack.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, SaveStack(path, Default()))
			got, err := LoadStack(path)
			require.NoError(t, err)
			assert.True(t, got.Equal(Default()))
		})
	}
	_, err := LoadStack(filepath.Join(dir, "stack.txt"))
	assert.Error(t, err)
}

func TestFormatRow(t *testing.T) {
	row := FormatRow(Default().At(0))
	assert.Equal(t, Row{Name: "Film", Role: "tunable", Thickness: "100.0", SLD: "3.00", Roughness: "0.5"}, row)
	assert.Equal(t, "∞", FormatRow(Default().At(2)).Thickness)
}

func TestLookupMaterial(t *testing.T) {
	m, ok := LookupMaterial("SiO2")
	require.True(t, ok)
	assert.Equal(t, "SiO₂", m.Formula)

	_, err := FromMaterial("Unobtainium")
	assert.Error(t, err)
}
