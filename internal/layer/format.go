package layer

// Row is the display form of a layer.
type Row struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	Thickness string `json:"thickness"`
	SLD       string `json:"sld"`
	Roughness string `json:"roughness"`
}

// FormatRow renders a layer for tables: thickness and roughness with one
// decimal, SLD with two.
func FormatRow(l Layer) Row {
	return Row{
		Name:      l.Name,
		Role:      l.Role.String(),
		Thickness: l.Thickness.Format(1),
		SLD:       l.SLD.Format(2),
		Roughness: l.Roughness.Format(1),
	}
}

// FormatRows renders every layer of a stack.
func FormatRows(s Stack) []Row {
	rows := make([]Row, s.Len())
	for i := 0; i < s.Len(); i++ {
		rows[i] = FormatRow(s.At(i))
	}
	return rows
}
