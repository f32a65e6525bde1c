// Package roi resolves region labels to names and hemispheres and builds
// derived (composite) regions as weighted sums of labeled volumes.
package roi

import (
	"sort"
	"strconv"
	"strings"

	apperr "roiquant/pkg/errors"
	"roiquant/pkg/tabular"
)

// Hemisphere values found in the ROI dictionary
const (
	Left  = "L"
	Right = "R"
)

// Dictionary column names
const (
	ColumnIndex      = "ROI_INDEX"
	ColumnName       = "ROI_NAME"
	ColumnHemisphere = "HEMISPHERE"
)

// Entry is one row of the ROI dictionary
type Entry struct {
	Index      int
	Name       string
	Hemisphere string
}

// Dictionary maps ROI indices to names and sides
type Dictionary struct {
	entries map[int]Entry
}

// NewDictionary builds a dictionary from entries; later duplicates win
func NewDictionary(entries []Entry) *Dictionary {
	d := &Dictionary{entries: make(map[int]Entry, len(entries))}
	for _, e := range entries {
		d.entries[e.Index] = e
	}
	return d
}

// LoadDictionary reads the ROI dictionary (CSV or XLSX)
func LoadDictionary(path string) (*Dictionary, error) {
	tbl, err := tabular.NewReader(path).Read()
	if err != nil {
		return nil, err
	}
	for _, col := range []string{ColumnIndex, ColumnName, ColumnHemisphere} {
		if !tbl.Has(col) {
			return nil, apperr.ReferenceData("ROI dictionary %s lacks column %s", path, col)
		}
	}

	entries := make([]Entry, 0, len(tbl.Rows))
	for i, row := range tbl.Rows {
		idx, err := strconv.Atoi(row[ColumnIndex])
		if err != nil {
			return nil, apperr.Wrap(err, apperr.KindReferenceData, "ROI dictionary row %d: bad index %q", i+1, row[ColumnIndex])
		}
		entries = append(entries, Entry{
			Index:      idx,
			Name:       row[ColumnName],
			Hemisphere: strings.ToUpper(row[ColumnHemisphere]),
		})
	}
	return NewDictionary(entries), nil
}

// Len returns the number of entries
func (d *Dictionary) Len() int {
	return len(d.entries)
}

// Has reports whether index is defined
func (d *Dictionary) Has(index int) bool {
	_, ok := d.entries[index]
	return ok
}

// Name returns the human-readable name of index
func (d *Dictionary) Name(index int) (string, bool) {
	e, ok := d.entries[index]
	return e.Name, ok
}

// Side returns the ascending indices on the given hemisphere that are not
// above maxIndex
func (d *Dictionary) Side(hemisphere string, maxIndex int) []int {
	var out []int
	for idx, e := range d.entries {
		if e.Hemisphere == hemisphere && idx <= maxIndex {
			out = append(out, idx)
		}
	}
	sort.Ints(out)
	return out
}
