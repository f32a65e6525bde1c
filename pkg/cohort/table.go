// Package cohort holds the reference populations a subject is compared
// against and the age-windowed ICV normalization applied to them.
package cohort

import (
	"sort"
	"strconv"
	"strings"
	"time"

	apperr "roiquant/pkg/errors"
	"roiquant/pkg/roi"
	"roiquant/pkg/tabular"
)

// Schema names the demographic columns of a reference file. Every column
// not named here, and not listed in TextColumns, is parsed as a number.
type Schema struct {
	SubjectIDColumn string
	AgeColumn       string
	SexColumn       string
	DiagnosisColumn string
	DateColumn      string
	TextColumns     []string

	// ICVColumn is copied into Row.ICV and kept as a value column
	ICVColumn string

	// SexCodes translates coded values such as "0"/"1"
	SexCodes map[string]string

	// Rename maps source column names to the names used after loading
	Rename map[string]string
}

// Row is one reference subject visit
type Row struct {
	SubjectID string
	Age       float64
	Sex       string
	Diagnosis string
	Date      time.Time

	// ICV is the raw intracranial volume. It is never rewritten by
	// normalization, so window means always see pre-normalization values.
	ICV float64

	Text   map[string]string
	Values map[string]float64
}

func (r *Row) clone() Row {
	c := *r
	c.Text = make(map[string]string, len(r.Text))
	for k, v := range r.Text {
		c.Text[k] = v
	}
	c.Values = make(map[string]float64, len(r.Values))
	for k, v := range r.Values {
		c.Values[k] = v
	}
	return c
}

// Table is a reference cohort: ordered value columns and one Row per visit
type Table struct {
	Columns []string
	Rows    []Row
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// HasColumn reports whether name is a value column
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy; the copy can be rewritten without affecting t
func (t *Table) Clone() *Table {
	return t.Filter(func(*Row) bool { return true })
}

// Filter returns a deep copy holding the rows accepted by keep
func (t *Table) Filter(keep func(*Row) bool) *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...)}
	for i := range t.Rows {
		if keep(&t.Rows[i]) {
			out.Rows = append(out.Rows, t.Rows[i].clone())
		}
	}
	return out
}

// FilterSex keeps the rows of one sex
func (t *Table) FilterSex(sex string) *Table {
	return t.Filter(func(r *Row) bool { return r.Sex == sex })
}

// FirstVisits keeps the earliest-dated row of every subject. Ties keep the
// row that appears first in the file.
func (t *Table) FirstVisits() *Table {
	idx := make([]int, len(t.Rows))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return t.Rows[idx[a]].Date.Before(t.Rows[idx[b]].Date)
	})

	seen := make(map[string]bool, len(t.Rows))
	out := &Table{Columns: append([]string(nil), t.Columns...)}
	for _, i := range idx {
		r := &t.Rows[i]
		if seen[r.SubjectID] {
			continue
		}
		seen[r.SubjectID] = true
		out.Rows = append(out.Rows, r.clone())
	}
	return out
}

// AddColumns evaluates derive on every row and stores the results as new
// value columns. This is the table form of the per-subject aggregation.
func (t *Table) AddColumns(derive func(roi.Lookup) map[string]float64) {
	added := map[string]bool{}
	for i := range t.Rows {
		r := &t.Rows[i]
		for name, v := range derive(roi.FromColumns(r.Values)) {
			r.Values[name] = v
			added[name] = true
		}
	}
	names := make([]string, 0, len(added))
	for name := range added {
		if !t.HasColumn(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	t.Columns = append(t.Columns, names...)
}

// Column returns the values of one column in row order
func (t *Table) Column(name string) []float64 {
	out := make([]float64, len(t.Rows))
	for i := range t.Rows {
		out[i] = t.Rows[i].Values[name]
	}
	return out
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"20060102",
	time.RFC3339,
}

func parseDate(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range dateLayouts {
		d, err := time.Parse(layout, s)
		if err == nil {
			return d, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func isMissing(s string) bool {
	switch strings.ToLower(s) {
	case "", "na", "nan", "null", "none", "n/a":
		return true
	}
	return false
}

// FromTabular converts a parsed file into a Table. Rows with any missing
// cell are dropped, and the number of dropped rows is returned.
func FromTabular(src *tabular.Table, schema Schema) (*Table, int, error) {
	required := []string{schema.SubjectIDColumn, schema.AgeColumn, schema.SexColumn,
		schema.DiagnosisColumn, schema.DateColumn, schema.ICVColumn}
	for _, col := range required {
		if !src.Has(col) {
			return nil, 0, apperr.ReferenceData("reference table lacks column %q", col)
		}
	}

	special := map[string]bool{
		schema.SubjectIDColumn: true,
		schema.AgeColumn:       true,
		schema.SexColumn:       true,
		schema.DiagnosisColumn: true,
		schema.DateColumn:      true,
	}
	text := map[string]bool{}
	for _, c := range schema.TextColumns {
		text[c] = true
	}

	rename := func(col string) string {
		if to, ok := schema.Rename[col]; ok {
			return to
		}
		return col
	}

	t := &Table{}
	for _, h := range src.Headers {
		if !special[h] && !text[h] {
			t.Columns = append(t.Columns, rename(h))
		}
	}

	dropped := 0
	for i, raw := range src.Rows {
		if hasMissing(raw, src.Headers) {
			dropped++
			continue
		}

		row := Row{
			SubjectID: raw[schema.SubjectIDColumn],
			Diagnosis: raw[schema.DiagnosisColumn],
			Sex:       raw[schema.SexColumn],
			Text:      map[string]string{},
			Values:    make(map[string]float64, len(t.Columns)),
		}
		if code, ok := schema.SexCodes[row.Sex]; ok {
			row.Sex = code
		}

		age, err := strconv.ParseFloat(raw[schema.AgeColumn], 64)
		if err != nil {
			return nil, 0, apperr.Wrap(err, apperr.KindReferenceData, "row %d: bad age %q", i+2, raw[schema.AgeColumn])
		}
		row.Age = age

		row.Date, err = parseDate(raw[schema.DateColumn])
		if err != nil {
			return nil, 0, apperr.Wrap(err, apperr.KindReferenceData, "row %d: bad date %q", i+2, raw[schema.DateColumn])
		}

		for _, h := range src.Headers {
			switch {
			case special[h]:
			case text[h]:
				row.Text[h] = raw[h]
			default:
				v, err := strconv.ParseFloat(raw[h], 64)
				if err != nil {
					return nil, 0, apperr.Wrap(err, apperr.KindReferenceData, "row %d: column %s is not numeric", i+2, h)
				}
				row.Values[rename(h)] = v
			}
		}
		row.ICV = row.Values[rename(schema.ICVColumn)]

		t.Rows = append(t.Rows, row)
	}
	return t, dropped, nil
}

func hasMissing(raw tabular.Row, headers []string) bool {
	for _, h := range headers {
		if isMissing(raw[h]) {
			return true
		}
	}
	return false
}

// Load reads a CSV or XLSX reference file, drops incomplete rows and keeps
// the earliest visit of every subject. The dropped row count is returned.
func Load(path string, schema Schema) (*Table, int, error) {
	src, err := tabular.NewReader(path).Read()
	if err != nil {
		return nil, 0, apperr.Wrap(err, apperr.KindReferenceData, "read reference table %s", path)
	}
	t, dropped, err := FromTabular(src, schema)
	if err != nil {
		return nil, 0, apperr.Wrap(err, apperr.KindReferenceData, "parse reference table %s", path)
	}
	return t.FirstVisits(), dropped, nil
}
