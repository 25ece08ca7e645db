package curve

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Read parses a two-column text curve. The delimiter is guessed from the
// first numeric line (comma, semicolon, tab or spaces). Rows whose first two
// fields are not numbers are skipped, which drops headers and comments.
func Read(r io.Reader) (Curve, error) {
	var c Curve
	var split func(string) []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if split == nil {
			split = sniff(line)
			if split == nil {
				continue
			}
		}
		q, i, ok := parseRow(split(line))
		if !ok {
			continue
		}
		c.Q = append(c.Q, q)
		c.Intensity = append(c.Intensity, i)
	}
	if err := sc.Err(); err != nil {
		return Curve{}, err
	}
	return c, nil
}

var splitters = []func(string) []string{
	func(s string) []string { return strings.Split(s, ",") },
	func(s string) []string { return strings.Split(s, ";") },
	func(s string) []string { return strings.Split(s, "\t") },
	strings.Fields,
}

// sniff returns the first splitter that turns line into a numeric row, or
// nil if none does.
func sniff(line string) func(string) []string {
	for _, split := range splitters {
		if _, _, ok := parseRow(split(line)); ok {
			return split
		}
	}
	return nil
}

func parseRow(fields []string) (float64, float64, bool) {
	if len(fields) < 2 {
		return 0, 0, false
	}
	q, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	i, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	if !finite(q) || !finite(i) {
		return 0, 0, false
	}
	return q, i, true
}

// ReadFile loads a curve from a text or spreadsheet file and validates it.
func ReadFile(path string) (Curve, error) {
	var (
		c   Curve
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		c, err = readWorkbook(path)
	default:
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return Curve{}, err
		}
		defer f.Close()
		c, err = Read(f)
	}
	if err != nil {
		return Curve{}, fmt.Errorf("read curve %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Curve{}, fmt.Errorf("curve %s: %w", path, err)
	}
	return c, nil
}

// readWorkbook takes the first two columns of the first sheet.
func readWorkbook(path string) (Curve, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return Curve{}, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Curve{}, fmt.Errorf("no sheets in workbook")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Curve{}, err
	}
	var c Curve
	for _, row := range rows {
		q, i, ok := parseRow(row)
		if !ok {
			continue
		}
		c.Q = append(c.Q, q)
		c.Intensity = append(c.Intensity, i)
	}
	return c, nil
}

// WriteCSV writes the curve as q,intensity rows with a header.
func WriteCSV(w io.Writer, c Curve) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "q,intensity")
	for i := range c.Q {
		fmt.Fprintf(bw, "%s,%s\n",
			strconv.FormatFloat(c.Q[i], 'g', -1, 64),
			strconv.FormatFloat(c.Intensity[i], 'g', -1, 64))
	}
	return bw.Flush()
}
